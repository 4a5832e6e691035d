package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

// Sender puts upload jobs into the postgres gue queue
type Sender struct {
	gc    *gue.Client
	queue string
}

// NewSender initializes gue sender
func NewSender(pool *pgxpool.Pool) (*Sender, error) {
	gc, err := gue.NewClient(pgxv5.NewConnPool(pool))
	if err != nil {
		return nil, fmt.Errorf("can't init gue: %w", err)
	}
	return &Sender{gc: gc, queue: messages.Upload}, nil
}

// Enqueue adds upload job, jobs are consumed by a single worker in enqueue order
func (sender *Sender) Enqueue(ctx context.Context, msg *messages.UploadMessage) error {
	goapp.Log.Debug().Str("queue", sender.queue).Str("ID", msg.ID).Str("kind", msg.Kind).Msg("enqueue")
	args, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("can't marshal msg: %w", err)
	}

	j := &gue.Job{
		Type:  sender.queue,
		Queue: sender.queue,
		Args:  args,
	}
	if err := sender.gc.Enqueue(ctx, j); err != nil {
		return fmt.Errorf("can't send msg to %s: %w", sender.queue, err)
	}
	return nil
}
