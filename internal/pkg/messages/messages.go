package messages

import (
	"strconv"

	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "CALLREC/"
	// Upload queue name
	Upload = st + "Upload"
)

// Upload kinds
const (
	// KindCall uploads call metadata with the recording if it is known
	KindCall = "call"
	// KindFile uploads a standalone recording file
	KindFile = "file"
)

// UploadMessage asks the worker to upload a call or a file
type UploadMessage struct {
	amessages.QueueMessage
	Kind      string `json:"kind"`
	CallLogID int64  `json:"callLogID,omitempty"`
	FilePath  string `json:"filePath,omitempty"`
}

// NewCallMessage creates message for the call upload
func NewCallMessage(callLogID int64) *UploadMessage {
	return &UploadMessage{QueueMessage: amessages.QueueMessage{ID: strconv.FormatInt(callLogID, 10)},
		Kind: KindCall, CallLogID: callLogID}
}

// NewFileMessage creates message for the file upload
func NewFileMessage(path string) *UploadMessage {
	return &UploadMessage{QueueMessage: amessages.QueueMessage{ID: path}, Kind: KindFile, FilePath: path}
}
