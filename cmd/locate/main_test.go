package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/airenas/callrec/internal/pkg/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	test.WriteFile(t, filepath.Join(root, "CallRecord", "13800138000_20240501.mp3"), "a", at)
	test.WriteFile(t, filepath.Join(root, "CallRecord", "13900139000_20240501.mp3"), "b", at)
	var b bytes.Buffer

	err := run(test.Ctx(t), &b, params{root: root, number: "13800138000", depth: 3, noGetProp: true})

	require.Nil(t, err)
	out := b.String()
	assert.Contains(t, out, "vendor: ")
	assert.Contains(t, out, filepath.Join(root, "CallRecord"))
	assert.Contains(t, out, "match for 13800138000: ")
	assert.Contains(t, out, "13800138000_20240501.mp3")
}

func Test_run_NoMatch(t *testing.T) {
	root := t.TempDir()
	var b bytes.Buffer

	err := run(test.Ctx(t), &b, params{root: root, number: "138", depth: 3, deep: true, noGetProp: true})

	require.Nil(t, err)
	assert.Contains(t, b.String(), "match for 138: ")
	assert.Contains(t, b.String(), "none")
}

func Test_run_WrongTime(t *testing.T) {
	var b bytes.Buffer
	err := run(test.Ctx(t), &b, params{root: t.TempDir(), number: "138", at: "olia", depth: 3, noGetProp: true})
	assert.NotNil(t, err)
}

func Test_run_NoRoot(t *testing.T) {
	var b bytes.Buffer
	err := run(test.Ctx(t), &b, params{root: filepath.Join(t.TempDir(), "missing"), depth: 3, noGetProp: true})
	assert.NotNil(t, err)
}
