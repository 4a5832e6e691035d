package events

import (
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// Event types
const (
	CallEnded          = "call.ended"
	CallRecorded       = "call.recorded"
	UploadSucceeded    = "upload.succeeded"
	UploadFailed       = "upload.failed"
	SessionExpired     = "session.expired"
	PermissionRequired = "permission.required"
)

// Event is a notification about core state change
type Event struct {
	Type       string    `json:"type"`
	Time       time.Time `json:"time"`
	CallLogID  int64     `json:"callLogID,omitempty"`
	Path       string    `json:"path,omitempty"`
	Permission string    `json:"permission,omitempty"`
	Msg        string    `json:"msg,omitempty"`
}

// NeedsAction returns true if the user must do something: log in or grant a permission
func (e Event) NeedsAction() bool {
	return e.Type == SessionExpired || e.Type == PermissionRequired
}

// Bus fans events out to subscribers. Each subscriber has a bounded mailbox,
// a full mailbox drops the event for that subscriber.
// Events needing action are kept until some subscriber takes them
type Bus struct {
	lock    sync.Mutex
	subs    map[int]chan Event
	next    int
	pending []Event
	size    int
	nowF    func() time.Time
}

// NewBus creates bus with mailbox size
func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{subs: map[int]chan Event{}, size: size, nowF: time.Now}
}

// Publish never blocks
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = b.nowF()
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	goapp.Log.Debug().Str("type", ev.Type).Int("subs", len(b.subs)).Msg("event")
	if len(b.subs) == 0 {
		if ev.NeedsAction() {
			b.keep(ev)
		}
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			goapp.Log.Warn().Str("type", ev.Type).Int("sub", id).Msg("mailbox full, drop")
		}
	}
}

// Subscribe returns the mailbox and the unsubscribe func.
// The first subscriber gets the kept events
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()
	ch := make(chan Event, b.size)
	for _, ev := range b.pending {
		ch <- ev
	}
	b.pending = nil
	id := b.next
	b.next++
	b.subs[id] = ch
	once := sync.Once{}
	return ch, func() {
		once.Do(func() {
			b.lock.Lock()
			defer b.lock.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// keep stores the event, the same kind replaces the old one
func (b *Bus) keep(ev Event) {
	for i, p := range b.pending {
		if p.Type == ev.Type && p.Permission == ev.Permission {
			b.pending = append(b.pending[:i], b.pending[i+1:]...)
			break
		}
	}
	if len(b.pending) >= b.size {
		b.pending = b.pending[1:]
	}
	b.pending = append(b.pending, ev)
}
