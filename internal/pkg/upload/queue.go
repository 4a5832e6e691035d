package upload

import (
	"context"
	"errors"
	"sync"

	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
)

// Handler processes upload messages
type Handler interface {
	Handle(ctx context.Context, msg *messages.UploadMessage) error
}

// ErrQueueClosed is returned by Enqueue after Close
var ErrQueueClosed = errors.New("queue closed")

// Queue is an in process FIFO upload queue with one worker
type Queue struct {
	handler Handler
	ch      chan *messages.UploadMessage
	lock    sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewQueue creates queue with the buffer size
func NewQueue(handler Handler, size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{handler: handler, ch: make(chan *messages.UploadMessage, size), done: make(chan struct{})}
}

// Start runs the worker. Started messages finish even if ctx is canceled
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		goapp.Log.Info().Msg("upload queue started")
		for {
			select {
			case msg, ok := <-q.ch:
				if !ok {
					goapp.Log.Info().Msg("upload queue drained")
					return
				}
				q.handle(context.WithoutCancel(ctx), msg)
			case <-ctx.Done():
				goapp.Log.Info().Msg("upload queue stopped")
				return
			}
		}
	}()
}

func (q *Queue) handle(ctx context.Context, msg *messages.UploadMessage) {
	if err := q.handler.Handle(ctx, msg); err != nil {
		if errors.Is(err, utils.ErrLoginExpired) {
			goapp.Log.Warn().Str("ID", msg.ID).Msg("upload skipped, login expired")
			return
		}
		goapp.Log.Error().Err(err).Str("ID", msg.ID).Str("kind", msg.Kind).Msg("upload failed")
	}
}

// Enqueue adds the message, blocks while the buffer is full
func (q *Queue) Enqueue(ctx context.Context, msg *messages.UploadMessage) error {
	q.lock.RLock()
	defer q.lock.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- msg:
		goapp.Log.Debug().Str("ID", msg.ID).Str("kind", msg.Kind).Msg("enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages, the worker drains the rest
func (q *Queue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Done is closed when the worker exits
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
