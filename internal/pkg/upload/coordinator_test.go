package upload

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/airenas/callrec/internal/pkg/backend"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/airenas/callrec/internal/pkg/test"
	"github.com/airenas/callrec/internal/pkg/test/mocks"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testMocks struct {
	db       *mocks.DB
	backend  *mocks.Backend
	session  *mocks.Session
	events   *mocks.Publisher
	archiver *mocks.Archiver
}

func initTest(t *testing.T) (*Coordinator, *testMocks) {
	t.Helper()
	m := &testMocks{db: &mocks.DB{}, backend: &mocks.Backend{}, session: &mocks.Session{},
		events: &mocks.Publisher{}, archiver: &mocks.Archiver{}}
	m.events.On("Publish", mock.Anything).Return()
	m.db.On("SetSetting", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	c, err := NewCoordinator(&Data{Calls: m.db, Statuses: m.db, Settings: m.db, Backend: m.backend, Session: m.session,
		Events: m.events, Archiver: m.archiver})
	require.Nil(t, err)
	return c, m
}

func testRec(path string) *persistence.CallRecord {
	return &persistence.CallRecord{CallLogID: 10, UUID: "u1", CallerNumber: "+86139", Mobile: "138",
		CallStartTime: 1000, Connected: true, CallEndTime: 6000, DurationMs: 5000, RecordFilePath: path}
}

func testFile(t *testing.T) string {
	return test.WriteFile(t, filepath.Join(t.TempDir(), "call_138.amr"), "audio", time.UnixMilli(7000))
}

func expectLedger(m *testMocks, path string, st status.Status, hashUploaded bool) {
	m.db.On("UpsertPending", mock.Anything, mock.MatchedBy(func(f *persistence.RecordFile) bool { return f.Path == path })).
		Return(int64(1), nil)
	m.db.On("GetUpload", mock.Anything, path).Return(&persistence.UploadRecord{FilePath: path, FileHash: "h1", Status: st}, nil)
	m.db.On("IsHashUploaded", mock.Anything, "h1").Return(hashUploaded, nil)
	m.db.On("Transition", mock.Anything, path, mock.Anything, mock.Anything).Return(nil)
}

func publishedTypes(m *testMocks) []string {
	res := []string{}
	for _, c := range m.events.Calls {
		res = append(res, c.Arguments.Get(0).(events.Event).Type)
	}
	return res
}

func TestNewCoordinator_Fail(t *testing.T) {
	_, err := NewCoordinator(nil)
	assert.NotNil(t, err)
	_, err = NewCoordinator(&Data{})
	assert.NotNil(t, err)
}

func TestUploadCombined_WithFile(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	expectLedger(m, file, status.Pending, false)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, file).Return("srv1", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)
	m.archiver.On("Archive", mock.Anything, file).Return(nil)
	rec := testRec(file)

	err := c.UploadCombined(test.Ctx(t), rec)

	require.Nil(t, err)
	assert.True(t, rec.Uploaded)
	data := m.backend.Calls[0].Arguments.Get(1).(*backend.CallData)
	assert.Equal(t, &backend.CallData{UUID: "u1", CallStartTime: 1000, Connected: true, CallEndTime: 6000,
		DurationMs: 5000, CallerNumber: "139", Mobile: "138"}, data)
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.Uploading, "")
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.UploadSuccess, "srv1")
	m.db.AssertCalled(t, "UpdateCall", mock.Anything, mock.MatchedBy(func(r *persistence.CallRecord) bool { return r.Uploaded }))
	m.db.AssertCalled(t, "SetSetting", mock.Anything, persistence.KeyLastTimeLog, "1000")
	m.db.AssertCalled(t, "SetSetting", mock.Anything, persistence.KeyLastTimeRecording, "7000")
	m.archiver.AssertCalled(t, "Archive", mock.Anything, file)
	assert.Equal(t, []string{events.UploadSucceeded}, publishedTypes(m))
}

func TestUploadCombined_NoPath(t *testing.T) {
	c, m := initTest(t)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, "").Return("", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)

	err := c.UploadCombined(test.Ctx(t), testRec(""))

	require.Nil(t, err)
	m.db.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
	m.db.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.archiver.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
}

func TestUploadCombined_MissingFile(t *testing.T) {
	c, m := initTest(t)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, "").Return("", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)

	err := c.UploadCombined(test.Ctx(t), testRec("/none/a.amr"))

	require.Nil(t, err)
	m.db.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
}

func TestUploadCombined_AlreadyUploaded(t *testing.T) {
	tests := []struct {
		name         string
		st           status.Status
		hashUploaded bool
	}{
		{name: "path", st: status.UploadSuccess},
		{name: "content", st: status.Pending, hashUploaded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, m := initTest(t)
			file := testFile(t)
			expectLedger(m, file, tt.st, tt.hashUploaded)
			m.backend.On("UploadCallLog", mock.Anything, mock.Anything, "").Return("", nil)
			m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)

			err := c.UploadCombined(test.Ctx(t), testRec(file))

			require.Nil(t, err)
			m.db.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.archiver.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
		})
	}
}

func TestUploadCombined_LoginExpired(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	expectLedger(m, file, status.UploadFailed, false)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, file).Return("", utils.ErrLoginExpired)
	m.session.On("Clear", mock.Anything).Return(nil)
	rec := testRec(file)

	err := c.UploadCombined(test.Ctx(t), rec)

	assert.True(t, errors.Is(err, utils.ErrLoginExpired))
	assert.False(t, rec.Uploaded)
	m.db.AssertNotCalled(t, "UpdateCall", mock.Anything, mock.Anything)
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.UploadFailed, "")
	m.db.AssertNotCalled(t, "Transition", mock.Anything, file, status.UploadSuccess, mock.Anything)
	m.session.AssertCalled(t, "Clear", mock.Anything)
	assert.Equal(t, []string{events.SessionExpired}, publishedTypes(m))
}

func TestUploadCombined_Transient(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	expectLedger(m, file, status.Pending, false)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, file).Return("", &utils.ErrRequest{Code: 500, Msg: "olia"})
	rec := testRec(file)

	err := c.UploadCombined(test.Ctx(t), rec)

	require.NotNil(t, err)
	assert.False(t, errors.Is(err, utils.ErrLoginExpired))
	assert.False(t, rec.Uploaded)
	m.db.AssertNotCalled(t, "UpdateCall", mock.Anything, mock.Anything)
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.UploadFailed, "")
	m.session.AssertNotCalled(t, "Clear", mock.Anything)
	m.db.AssertNotCalled(t, "SetSetting", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{events.UploadFailed}, publishedTypes(m))
}

func TestUploadCombined_LedgerFail(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	m.db.On("UpsertPending", mock.Anything, mock.Anything).Return(int64(0), errors.New("olia"))

	err := c.UploadCombined(test.Ctx(t), testRec(file))

	assert.NotNil(t, err)
	m.backend.AssertNotCalled(t, "UploadCallLog", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadMetadata(t *testing.T) {
	c, m := initTest(t)
	m.backend.On("UploadCallInfo", mock.Anything, mock.Anything).Return("", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)
	rec := testRec("/r/a.amr")

	err := c.UploadMetadata(test.Ctx(t), rec)

	require.Nil(t, err)
	assert.True(t, rec.Uploaded)
	m.db.AssertNotCalled(t, "UpsertPending", mock.Anything, mock.Anything)
}

func TestUploadMetadata_LoginExpired(t *testing.T) {
	c, m := initTest(t)
	m.backend.On("UploadCallInfo", mock.Anything, mock.Anything).Return("", utils.ErrLoginExpired)
	m.session.On("Clear", mock.Anything).Return(nil)

	err := c.UploadMetadata(test.Ctx(t), testRec(""))

	assert.True(t, errors.Is(err, utils.ErrLoginExpired))
	m.db.AssertNotCalled(t, "UpdateCall", mock.Anything, mock.Anything)
}

func TestUploadFile(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	expectLedger(m, file, status.Pending, false)
	id, err := FileUUID(file)
	require.Nil(t, err)
	m.backend.On("UploadRecordFile", mock.Anything, id, file).Return("", nil)
	m.archiver.On("Archive", mock.Anything, file).Return(nil)

	err = c.UploadFile(test.Ctx(t), file)

	require.Nil(t, err)
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.UploadSuccess, id)
	m.db.AssertNotCalled(t, "UpdateCall", mock.Anything, mock.Anything)
}

func TestUploadFile_SameContent(t *testing.T) {
	c, m := initTest(t)
	file := testFile(t)
	expectLedger(m, file, status.Pending, true)

	err := c.UploadFile(test.Ctx(t), file)

	require.Nil(t, err)
	m.backend.AssertNotCalled(t, "UploadRecordFile", mock.Anything, mock.Anything, mock.Anything)
	m.db.AssertCalled(t, "Transition", mock.Anything, file, status.UploadSuccess, "")
}

func TestUploadFile_Missing(t *testing.T) {
	c, _ := initTest(t)
	assert.NotNil(t, c.UploadFile(test.Ctx(t), "/none/a.amr"))
	assert.NotNil(t, c.UploadFile(test.Ctx(t), ""))
}

func TestFileUUID(t *testing.T) {
	dir := t.TempDir()
	f1 := test.WriteFile(t, filepath.Join(dir, "a.amr"), "audio", time.Time{})
	f2 := test.WriteFile(t, filepath.Join(dir, "b.amr"), "audio", time.Time{})
	f3 := test.WriteFile(t, filepath.Join(dir, "c.amr"), "other", time.Time{})
	id1, err := FileUUID(f1)
	require.Nil(t, err)
	id2, _ := FileUUID(f2)
	id3, _ := FileUUID(f3)
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, byte('5'), id1[14])
}

func TestUpload_Serialized(t *testing.T) {
	c, m := initTest(t)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, "").Run(func(mock.Arguments) {
		time.Sleep(5 * time.Millisecond)
	}).Return("", nil)
	m.backend.On("UploadCallInfo", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		time.Sleep(5 * time.Millisecond)
	}).Return("", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = c.UploadCombined(test.Ctx(t), testRec(""))
			} else {
				_ = c.UploadMetadata(test.Ctx(t), testRec(""))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), c.maxInFlight.Load())
	assert.Equal(t, int32(0), c.inFlight.Load())
}

func TestUpload_GateHonorsContext(t *testing.T) {
	c, m := initTest(t)
	c.gate <- struct{}{}
	ctx, cf := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cf()

	err := c.UploadCombined(ctx, testRec(""))

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	m.backend.AssertNotCalled(t, "UploadCallLog", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle(t *testing.T) {
	c, m := initTest(t)
	m.db.On("GetByCallLogID", mock.Anything, int64(10)).Return(testRec(""), nil)
	m.db.On("GetByCallLogID", mock.Anything, int64(11)).Return(nil, nil)
	up := testRec("")
	up.Uploaded = true
	m.db.On("GetByCallLogID", mock.Anything, int64(12)).Return(up, nil)
	m.backend.On("UploadCallLog", mock.Anything, mock.Anything, "").Return("", nil)
	m.db.On("UpdateCall", mock.Anything, mock.Anything).Return(nil)

	assert.Nil(t, c.Handle(test.Ctx(t), messages.NewCallMessage(10)))
	assert.Nil(t, c.Handle(test.Ctx(t), messages.NewCallMessage(11)))
	assert.Nil(t, c.Handle(test.Ctx(t), messages.NewCallMessage(12)))
	assert.NotNil(t, c.Handle(test.Ctx(t), &messages.UploadMessage{Kind: "olia"}))
	m.backend.AssertNumberOfCalls(t, "UploadCallLog", 1)
}
