package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/callrec/internal/pkg/utils/handler"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// Handler uploads one queued item
type Handler interface {
	Handle(ctx context.Context, msg *messages.UploadMessage) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient *gue.Client
	Handler   Handler
	Timeout   time.Duration
	Testing   bool
}

const poolID = "upload-worker"

// StartWorkerService starts the upload queue listener.
// Only one worker runs so jobs are uploaded in the enqueue order.
// Returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}
	timeout := data.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	wm := gue.WorkMap{
		messages.Upload: handler.Create(data, handleUpload, handler.DefaultOpts[messages.UploadMessage]().
			WithFailure(failureHandler).WithTimeout(timeout).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, 1,
		gue.WithPoolQueue(messages.Upload),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID(poolID),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleUpload(ctx context.Context, m *messages.UploadMessage, data *ServiceData) error {
	goapp.Log.Info().Str("kind", m.Kind).Int64("callLogID", m.CallLogID).Str("path", m.FilePath).Msg("handling upload")
	return data.Handler.Handle(ctx, m)
}

// failureHandler retries only transient errors, the next reconcile pass re-enqueues the rest
func failureHandler(_ context.Context, m *messages.UploadMessage, err error, j *gue.Job) (bool, time.Duration, error) {
	if errors.Is(err, utils.ErrLoginExpired) {
		goapp.Log.Warn().Int64("callLogID", m.CallLogID).Msg("login expired, drop job")
		return false, 0, nil
	}
	if _, ok := utils.PermissionDenied(err); ok || errors.Is(err, os.ErrNotExist) {
		goapp.Log.Warn().Err(err).Str("path", m.FilePath).Msg("drop job")
		return false, 0, nil
	}
	if j.ErrorCount > 3 {
		goapp.Log.Info().Str("queue", j.Queue).Int32("errCount", j.ErrorCount).Msg("too many failures, drop job")
		return false, 0, nil
	}
	return true, 0, nil
}

func validate(data *ServiceData) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.Handler == nil {
		return fmt.Errorf("no handler")
	}
	return nil
}
