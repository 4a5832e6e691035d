package upload

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/test"
	"github.com/airenas/callrec/internal/pkg/test/mocks"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(time.Second):
		require.Fail(t, "queue not finished")
	}
}

func TestQueue_FIFO(t *testing.T) {
	h := &mocks.Handler{}
	lock := sync.Mutex{}
	got := []int64{}
	h.On("Handle", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		lock.Lock()
		defer lock.Unlock()
		got = append(got, args.Get(1).(*messages.UploadMessage).CallLogID)
	}).Return(nil)
	q := NewQueue(h, 10)
	for i := int64(1); i <= 5; i++ {
		require.Nil(t, q.Enqueue(test.Ctx(t), messages.NewCallMessage(i)))
	}
	q.Start(test.Ctx(t))
	q.Close()
	waitDone(t, q)

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestQueue_ErrorsDoNotStop(t *testing.T) {
	h := &mocks.Handler{}
	h.On("Handle", mock.Anything, mock.MatchedBy(func(m *messages.UploadMessage) bool { return m.CallLogID == 1 })).
		Return(errors.New("olia"))
	h.On("Handle", mock.Anything, mock.MatchedBy(func(m *messages.UploadMessage) bool { return m.CallLogID == 2 })).
		Return(utils.ErrLoginExpired)
	h.On("Handle", mock.Anything, mock.Anything).Return(nil)
	q := NewQueue(h, 10)
	q.Start(test.Ctx(t))
	for i := int64(1); i <= 3; i++ {
		require.Nil(t, q.Enqueue(test.Ctx(t), messages.NewCallMessage(i)))
	}
	q.Close()
	waitDone(t, q)

	h.AssertNumberOfCalls(t, "Handle", 3)
}

func TestQueue_EnqueueClosed(t *testing.T) {
	q := NewQueue(&mocks.Handler{}, 1)
	q.Close()
	q.Close()
	assert.Equal(t, ErrQueueClosed, q.Enqueue(test.Ctx(t), messages.NewCallMessage(1)))
}

func TestQueue_EnqueueFullHonorsContext(t *testing.T) {
	q := NewQueue(&mocks.Handler{}, 1)
	require.Nil(t, q.Enqueue(test.Ctx(t), messages.NewCallMessage(1)))
	ctx, cf := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cf()
	assert.NotNil(t, q.Enqueue(ctx, messages.NewCallMessage(2)))
}

func TestQueue_StopsOnContext(t *testing.T) {
	q := NewQueue(&mocks.Handler{}, 1)
	ctx, cf := context.WithCancel(context.Background())
	q.Start(ctx)
	cf()
	waitDone(t, q)
}
