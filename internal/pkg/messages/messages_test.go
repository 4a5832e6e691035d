package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallMessage(t *testing.T) {
	m := NewCallMessage(15)
	assert.Equal(t, "15", m.ID)
	assert.Equal(t, KindCall, m.Kind)
	assert.Equal(t, int64(15), m.CallLogID)
}

func TestNewFileMessage(t *testing.T) {
	m := NewFileMessage("/r/a.mp3")
	assert.Equal(t, "/r/a.mp3", m.ID)
	assert.Equal(t, KindFile, m.Kind)
	assert.Equal(t, "/r/a.mp3", m.FilePath)
}

func TestUploadMessage_JSON(t *testing.T) {
	b, err := json.Marshal(NewCallMessage(15))
	require.Nil(t, err)
	var m UploadMessage
	require.Nil(t, json.Unmarshal(b, &m))
	assert.Equal(t, *NewCallMessage(15), m)
}
