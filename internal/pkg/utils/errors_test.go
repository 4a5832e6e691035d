package utils

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrPermissionDenied_Error(t *testing.T) {
	assert.Equal(t, "permission denied: STORAGE", NewErrPermissionDenied(PermissionStorage, nil).Error())
	assert.Equal(t, "permission denied: READ_CALL_LOG: olia",
		NewErrPermissionDenied(PermissionCallLog, errors.New("olia")).Error())
}

func TestErrPermissionDenied_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewErrPermissionDenied(PermissionCallLog, io.EOF), io.EOF))
}

func TestPermissionDenied(t *testing.T) {
	p, ok := PermissionDenied(fmt.Errorf("wrap: %w", NewErrPermissionDenied(PermissionPhoneState, nil)))
	assert.True(t, ok)
	assert.Equal(t, PermissionPhoneState, p)
	_, ok = PermissionDenied(io.EOF)
	assert.False(t, ok)
}

func TestErrRequest_Error(t *testing.T) {
	assert.Equal(t, "request error 500: olia", (&ErrRequest{Code: 500, Msg: "olia"}).Error())
}
