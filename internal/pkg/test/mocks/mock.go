package mocks

import (
	"context"
	"time"

	"github.com/airenas/callrec/internal/pkg/backend"
	"github.com/airenas/callrec/internal/pkg/calllog"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/stretchr/testify/mock"
)

// DB is the store mock
type DB struct{ mock.Mock }

func (m *DB) GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error) {
	args := m.Called(ctx, id)
	return to[*persistence.CallRecord](args.Get(0)), args.Error(1)
}

func (m *DB) InsertCall(ctx context.Context, rec *persistence.CallRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *DB) UpdateCall(ctx context.Context, rec *persistence.CallRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *DB) ListCalls(ctx context.Context, limit int) ([]*persistence.CallRecord, error) {
	args := m.Called(ctx, limit)
	return to[[]*persistence.CallRecord](args.Get(0)), args.Error(1)
}

func (m *DB) UpsertPending(ctx context.Context, f *persistence.RecordFile) (int64, error) {
	args := m.Called(ctx, f)
	return to[int64](args.Get(0)), args.Error(1)
}

func (m *DB) GetUpload(ctx context.Context, path string) (*persistence.UploadRecord, error) {
	args := m.Called(ctx, path)
	return to[*persistence.UploadRecord](args.Get(0)), args.Error(1)
}

func (m *DB) GetStatus(ctx context.Context, path string) (status.Status, error) {
	args := m.Called(ctx, path)
	return to[status.Status](args.Get(0)), args.Error(1)
}

func (m *DB) Transition(ctx context.Context, path string, st status.Status, serverID string) error {
	args := m.Called(ctx, path, st, serverID)
	return args.Error(0)
}

func (m *DB) IsHashUploaded(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *DB) GetPending(ctx context.Context) ([]*persistence.UploadRecord, error) {
	args := m.Called(ctx)
	return to[[]*persistence.UploadRecord](args.Get(0)), args.Error(1)
}

func (m *DB) GetExpiredUploads(ctx context.Context, olderThan time.Time) ([]*persistence.UploadRecord, error) {
	args := m.Called(ctx, olderThan)
	return to[[]*persistence.UploadRecord](args.Get(0)), args.Error(1)
}

func (m *DB) DeleteUpload(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *DB) GetSetting(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *DB) SetSetting(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *DB) DeleteSetting(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *DB) Live(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Backend is the server client mock
type Backend struct{ mock.Mock }

func (m *Backend) UploadCallLog(ctx context.Context, data *backend.CallData, file string) (string, error) {
	args := m.Called(ctx, data, file)
	return args.String(0), args.Error(1)
}

func (m *Backend) UploadCallInfo(ctx context.Context, data *backend.CallData) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

func (m *Backend) UploadRecordFile(ctx context.Context, id, file string) (string, error) {
	args := m.Called(ctx, id, file)
	return args.String(0), args.Error(1)
}

// Session is the cookie store mock
type Session struct{ mock.Mock }

func (m *Session) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Session) Set(ctx context.Context, cookie string) error {
	args := m.Called(ctx, cookie)
	return args.Error(0)
}

// Publisher collects published events
type Publisher struct{ mock.Mock }

func (m *Publisher) Publish(ev events.Event) {
	m.Called(ev)
}

// Archiver mock
type Archiver struct{ mock.Mock }

func (m *Archiver) Archive(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

// Queue is the upload queue mock
type Queue struct{ mock.Mock }

func (m *Queue) Enqueue(ctx context.Context, msg *messages.UploadMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// Handler is the upload message handler mock
type Handler struct{ mock.Mock }

func (m *Handler) Handle(ctx context.Context, msg *messages.UploadMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// CallLog is the platform call log mock
type CallLog struct{ mock.Mock }

func (m *CallLog) Rows(ctx context.Context, since int64) ([]*calllog.Row, error) {
	args := m.Called(ctx, since)
	return to[[]*calllog.Row](args.Get(0)), args.Error(1)
}

func (m *CallLog) LineNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Locator is the recording finder mock
type Locator struct{ mock.Mock }

func (m *Locator) CheckAccess() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Locator) Locate(ctx context.Context, number string, callTime time.Time) (*persistence.RecordFile, error) {
	args := m.Called(ctx, number, callTime)
	return to[*persistence.RecordFile](args.Get(0)), args.Error(1)
}

func (m *Locator) Scan(ctx context.Context) ([]*persistence.RecordFile, error) {
	args := m.Called(ctx)
	return to[[]*persistence.RecordFile](args.Get(0)), args.Error(1)
}

func (m *Locator) ListCandidateDirectories() []string {
	args := m.Called()
	return to[[]string](args.Get(0))
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
