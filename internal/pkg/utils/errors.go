package utils

import (
	"errors"
	"fmt"
)

// ErrLoginExpired indicates expired backend session, user must log in again
var ErrLoginExpired = errors.New("login expired")

// ErrPermissionDenied indicates missing platform permission.
// The core can not recover from it, the user must grant the permission
type ErrPermissionDenied struct {
	Permission string
	err        error
}

// Permission names
const (
	PermissionCallLog    = "READ_CALL_LOG"
	PermissionPhoneState = "READ_PHONE_STATE"
	PermissionStorage    = "STORAGE"
)

// NewErrPermissionDenied creates new error
func NewErrPermissionDenied(permission string, err error) error {
	return &ErrPermissionDenied{Permission: permission, err: err}
}

func (e *ErrPermissionDenied) Error() string {
	if e.err == nil {
		return "permission denied: " + e.Permission
	}
	return fmt.Sprintf("permission denied: %s: %v", e.Permission, e.err)
}

func (e *ErrPermissionDenied) Unwrap() error {
	return e.err
}

// PermissionDenied returns missing permission name if err is ErrPermissionDenied
func PermissionDenied(err error) (string, bool) {
	var pErr *ErrPermissionDenied
	if errors.As(err, &pErr) {
		return pErr.Permission, true
	}
	return "", false
}

// ErrRequest is a request level error returned by backend with non zero code
type ErrRequest struct {
	Code int
	Msg  string
}

func (e *ErrRequest) Error() string {
	return fmt.Sprintf("request error %d: %s", e.Code, e.Msg)
}
