package status

// Status represents upload state of a recording file
type Status int

const (
	// Pending - file is known but not sent yet
	Pending Status = iota + 1
	// Uploading - upload is in progress
	Uploading
	// UploadSuccess - final step
	UploadSuccess
	// UploadFailed - last attempt failed, can be retried
	UploadFailed
)

var (
	statusName = map[Status]string{Pending: "PENDING", Uploading: "UPLOADING",
		UploadSuccess: "UPLOAD_SUCCESS", UploadFailed: "UPLOAD_FAILED"}
	nameStatus = map[string]Status{"PENDING": Pending, "UPLOADING": Uploading,
		"UPLOAD_SUCCESS": UploadSuccess, "UPLOAD_FAILED": UploadFailed}
)

func (st Status) String() string {
	return statusName[st]
}

// From returns status obj from string
func From(st string) Status {
	return nameStatus[st]
}

// CanTransition checks if the status change is allowed in normal flow.
// UPLOADING -> UPLOADING is allowed to pick up a row left by an interrupted upload.
func CanTransition(from, to Status) bool {
	switch from {
	case Pending, UploadFailed:
		return to == Uploading
	case Uploading:
		return to == Uploading || to == UploadSuccess || to == UploadFailed || to == Pending
	}
	return false
}

// Terminal returns true if no more uploads are expected
func (st Status) Terminal() bool {
	return st == UploadSuccess
}
