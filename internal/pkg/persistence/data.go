package persistence

import (
	"time"

	"github.com/airenas/callrec/internal/pkg/status"
)

type (

	//CallRecord table - one row per outgoing call seen after the install watermark
	CallRecord struct {
		CallLogID      int64
		UUID           string
		CallerNumber   string
		Mobile         string
		CallStartTime  int64 // ms epoch
		Connected      bool
		CallEndTime    int64 // ms epoch
		DurationMs     int64
		Uploaded       bool
		RecordFilePath string
	}

	//UploadRecord table - upload ledger keyed by file path
	UploadRecord struct {
		ID       int64
		FilePath string
		FileName string
		FileHash string
		FileSize int64
		Updated  time.Time
		Status   status.Status
		ServerID string
	}

	// RecordFile is a discovered recording file, not persisted
	RecordFile struct {
		Path     string
		Name     string
		Size     int64
		Created  time.Time
		Duration time.Duration
		Ext      string
	}
)

// Settings keys
const (
	KeyInstallTime       = "first_install_time"
	KeyLastTimeLog       = "last_time_log"
	KeyLastTimeRecording = "last_time_recording"
	KeyAuthCookie        = "auth_cookie"
)
