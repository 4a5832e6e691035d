package inform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
)

// Sender send emails
type Sender interface {
	Send(email *email.Email) error
}

// EmailMaker prepares the email
type EmailMaker interface {
	Make(ev *events.Event) (*email.Email, error)
}

// Subscriber provides events
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// ServiceData keeps data required for service work
type ServiceData struct {
	Events      Subscriber
	EmailSender Sender
	EmailMaker  EmailMaker
	// RepeatAfter suppresses the same notification for the period
	RepeatAfter time.Duration
}

type informer struct {
	data *ServiceData
	lock sync.Mutex
	sent map[string]time.Time
	nowF func() time.Time
}

// StartWorkerService starts listening for events demanding operator action.
// Returns channel for tracking when the listener is finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Dur("repeatAfter", data.RepeatAfter).Msg("Starting listen for events")

	inf := &informer{data: data, sent: map[string]time.Time{}, nowF: time.Now}
	evCh, unsubscribe := data.Events.Subscribe()
	res := make(chan struct{}, 1)
	go func() {
		defer func() { res <- struct{}{} }()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				goapp.Log.Info().Msg("Inform listener finished")
				return
			case ev, ok := <-evCh:
				if !ok {
					return
				}
				if err := inf.handle(&ev); err != nil {
					goapp.Log.Error().Err(err).Str("type", ev.Type).Msg("can't inform")
				}
			}
		}
	}()
	return res, nil
}

func (inf *informer) handle(ev *events.Event) error {
	if !ev.NeedsAction() {
		return nil
	}
	key := ev.Type + ":" + ev.Permission
	if !inf.mark(key) {
		goapp.Log.Debug().Str("key", key).Msg("already informed, skip")
		return nil
	}
	goapp.Log.Info().Str("type", ev.Type).Str("permission", ev.Permission).Msg("handling")
	mail, err := inf.data.EmailMaker.Make(ev)
	if err != nil {
		inf.unmark(key)
		return fmt.Errorf("can't prepare email: %w", err)
	}
	if err := inf.data.EmailSender.Send(mail); err != nil {
		inf.unmark(key)
		return fmt.Errorf("can't send email: %w", err)
	}
	return nil
}

// mark returns false if the same notification was sent recently
func (inf *informer) mark(key string) bool {
	inf.lock.Lock()
	defer inf.lock.Unlock()
	now := inf.nowF()
	if at, ok := inf.sent[key]; ok && now.Sub(at) < inf.data.RepeatAfter {
		return false
	}
	inf.sent[key] = now
	return true
}

func (inf *informer) unmark(key string) {
	inf.lock.Lock()
	defer inf.lock.Unlock()
	delete(inf.sent, key)
}

func validate(data *ServiceData) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.Events == nil {
		return fmt.Errorf("no events")
	}
	if data.EmailMaker == nil {
		return fmt.Errorf("no EmailMaker")
	}
	if data.EmailSender == nil {
		return fmt.Errorf("no EmailSender")
	}
	return nil
}
