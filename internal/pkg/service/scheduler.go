package service

import (
	"context"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// scheduler runs a reconcile pass after the settle delay.
// Triggers arriving before the pass starts are merged into one pass
type scheduler struct {
	engine Reconciler
	delay  time.Duration

	lock  sync.Mutex
	timer *time.Timer
}

func newScheduler(engine Reconciler, delay time.Duration) *scheduler {
	return &scheduler{engine: engine, delay: delay}
}

// Schedule never blocks
func (s *scheduler) Schedule(trigger string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil && s.timer.Stop() {
		goapp.Log.Debug().Str("trigger", trigger).Msg("merged with scheduled pass")
	}
	s.timer = time.AfterFunc(s.delay, func() { s.run(trigger) })
}

func (s *scheduler) run(trigger string) {
	res, err := s.engine.Run(context.Background(), trigger)
	if err != nil {
		goapp.Log.Error().Err(err).Str("trigger", trigger).Msg("reconcile failed")
		return
	}
	goapp.Log.Info().Str("trigger", trigger).Int("new", res.New).Int("retried", res.Retried).Msg("scheduled pass done")
}

// Stop cancels the pending pass
func (s *scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}
