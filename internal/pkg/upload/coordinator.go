package upload

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/airenas/callrec/internal/pkg/backend"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CallStore provides call records
type CallStore interface {
	GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error)
	UpdateCall(ctx context.Context, rec *persistence.CallRecord) error
}

// StatusStore provides the upload ledger
type StatusStore interface {
	UpsertPending(ctx context.Context, f *persistence.RecordFile) (int64, error)
	GetUpload(ctx context.Context, path string) (*persistence.UploadRecord, error)
	Transition(ctx context.Context, path string, st status.Status, serverID string) error
	IsHashUploaded(ctx context.Context, hash string) (bool, error)
}

// Settings saves watermarks
type Settings interface {
	SetSetting(ctx context.Context, key, value string) error
}

// Backend sends data to the server
type Backend interface {
	UploadCallLog(ctx context.Context, data *backend.CallData, file string) (string, error)
	UploadCallInfo(ctx context.Context, data *backend.CallData) (string, error)
	UploadRecordFile(ctx context.Context, id, file string) (string, error)
}

// Session is cleared on expired login
type Session interface {
	Clear(ctx context.Context) error
}

// Publisher sends events
type Publisher interface {
	Publish(ev events.Event)
}

// Archiver copies uploaded recording
type Archiver interface {
	Archive(ctx context.Context, path string) error
}

// Data keeps coordinator dependencies
type Data struct {
	Calls    CallStore
	Statuses StatusStore
	Settings Settings
	Backend  Backend
	Session  Session
	Events   Publisher
	Archiver Archiver // optional
}

// Coordinator runs uploads one at a time
type Coordinator struct {
	data *Data
	gate chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewCoordinator creates upload coordinator
func NewCoordinator(data *Data) (*Coordinator, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Coordinator{data: data, gate: make(chan struct{}, 1)}, nil
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.Calls == nil {
		return errors.New("no call store")
	}
	if data.Statuses == nil {
		return errors.New("no status store")
	}
	if data.Settings == nil {
		return errors.New("no settings")
	}
	if data.Backend == nil {
		return errors.New("no backend")
	}
	if data.Session == nil {
		return errors.New("no session")
	}
	if data.Events == nil {
		return errors.New("no events publisher")
	}
	return nil
}

// Handle processes a queued upload message
func (c *Coordinator) Handle(ctx context.Context, msg *messages.UploadMessage) error {
	switch msg.Kind {
	case messages.KindCall:
		rec, err := c.data.Calls.GetByCallLogID(ctx, msg.CallLogID)
		if err != nil {
			return err
		}
		if rec == nil {
			goapp.Log.Warn().Int64("callLogID", msg.CallLogID).Msg("no call record, skip")
			return nil
		}
		if rec.Uploaded {
			goapp.Log.Info().Int64("callLogID", msg.CallLogID).Msg("already uploaded")
			return nil
		}
		return c.UploadCombined(ctx, rec)
	case messages.KindFile:
		return c.UploadFile(ctx, msg.FilePath)
	}
	return errors.Errorf("unknown upload kind '%s'", msg.Kind)
}

// UploadCombined sends call info with the recording. If the recording is already uploaded
// (by path or by content) only call info is sent
func (c *Coordinator) UploadCombined(ctx context.Context, rec *persistence.CallRecord) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer goapp.Estimate("upload call")()

	tr, err := c.prepareFile(ctx, rec.RecordFilePath)
	if err != nil {
		return err
	}
	serverID, err := c.data.Backend.UploadCallLog(ctx, toCallData(rec), tr.sendPath())
	// the outcome is known, finish writes even if the caller is gone
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return c.fail(ctx, tr, rec.CallLogID, err)
	}
	c.fileUploaded(ctx, tr, serverID)
	if err := c.callUploaded(ctx, rec); err != nil {
		return err
	}
	c.data.Events.Publish(events.Event{Type: events.UploadSucceeded, CallLogID: rec.CallLogID, Path: tr.path})
	goapp.Log.Info().Int64("callLogID", rec.CallLogID).Bool("file", tr.send).Msg("uploaded")
	return nil
}

// UploadMetadata sends call info only
func (c *Coordinator) UploadMetadata(ctx context.Context, rec *persistence.CallRecord) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer goapp.Estimate("upload call info")()

	_, err = c.data.Backend.UploadCallInfo(ctx, toCallData(rec))
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return c.fail(ctx, &tracked{}, rec.CallLogID, err)
	}
	if err := c.callUploaded(ctx, rec); err != nil {
		return err
	}
	c.data.Events.Publish(events.Event{Type: events.UploadSucceeded, CallLogID: rec.CallLogID})
	return nil
}

// UploadFile sends a standalone recording, the id is derived from the file content
func (c *Coordinator) UploadFile(ctx context.Context, path string) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	defer goapp.Estimate("upload file")()

	if path == "" {
		return errors.New("no file")
	}
	tr, err := c.prepareFile(ctx, path)
	if err != nil {
		return err
	}
	if !tr.found {
		return errors.Errorf("no file %s", path)
	}
	if !tr.send {
		if tr.prev != status.UploadSuccess {
			// same content is on the server
			if err := c.data.Statuses.Transition(ctx, path, status.UploadSuccess, ""); err != nil {
				return err
			}
		}
		goapp.Log.Info().Str("path", path).Msg("already uploaded")
		return nil
	}
	id, err := FileUUID(path)
	if err != nil {
		_ = c.data.Statuses.Transition(context.WithoutCancel(ctx), path, tr.prev, "")
		return err
	}
	serverID, err := c.data.Backend.UploadRecordFile(ctx, id, path)
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		return c.fail(ctx, tr, 0, err)
	}
	if serverID == "" {
		serverID = id
	}
	c.fileUploaded(ctx, tr, serverID)
	c.data.Events.Publish(events.Event{Type: events.UploadSucceeded, Path: path})
	return nil
}

func (c *Coordinator) acquire(ctx context.Context) (func(), error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	n := c.inFlight.Add(1)
	for {
		m := c.maxInFlight.Load()
		if n <= m || c.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	return func() {
		c.inFlight.Add(-1)
		<-c.gate
	}, nil
}

type tracked struct {
	path  string
	found bool // file exists
	send  bool // file goes to the server, status is UPLOADING now
	prev  status.Status
	info  os.FileInfo
}

func (t *tracked) sendPath() string {
	if t.send {
		return t.path
	}
	return ""
}

// prepareFile registers the file in the ledger and marks it UPLOADING if it must be sent
func (c *Coordinator) prepareFile(ctx context.Context, path string) (*tracked, error) {
	res := &tracked{path: path}
	if path == "" {
		return res, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		goapp.Log.Warn().Err(err).Str("path", path).Msg("recording is not available")
		return res, nil
	}
	res.found, res.info = true, info
	if _, err := c.data.Statuses.UpsertPending(ctx, &persistence.RecordFile{Path: path, Name: filepath.Base(path),
		Size: info.Size(), Created: info.ModTime(), Ext: filepath.Ext(path)}); err != nil {
		return nil, err
	}
	up, err := c.data.Statuses.GetUpload(ctx, path)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, errors.Errorf("no upload record for %s", path)
	}
	res.prev = up.Status
	if up.Status == status.UploadSuccess {
		return res, nil
	}
	uploaded, err := c.data.Statuses.IsHashUploaded(ctx, up.FileHash)
	if err != nil {
		return nil, err
	}
	if uploaded {
		goapp.Log.Info().Str("path", path).Msg("same content uploaded before")
		return res, nil
	}
	if err := c.data.Statuses.Transition(ctx, path, status.Uploading, ""); err != nil {
		return nil, err
	}
	res.send = true
	return res, nil
}

func (c *Coordinator) fail(ctx context.Context, tr *tracked, callLogID int64, err error) error {
	if errors.Is(err, utils.ErrLoginExpired) {
		goapp.Log.Warn().Int64("callLogID", callLogID).Msg("login expired")
		if tr.send {
			c.transition(ctx, tr.path, tr.prev)
		}
		if cErr := c.data.Session.Clear(ctx); cErr != nil {
			goapp.Log.Error().Err(cErr).Msg("can't clear session")
		}
		c.data.Events.Publish(events.Event{Type: events.SessionExpired, CallLogID: callLogID, Path: tr.path})
		return utils.ErrLoginExpired
	}
	goapp.Log.Warn().Err(err).Int64("callLogID", callLogID).Str("path", tr.path).Msg("upload failed")
	if tr.send {
		c.transition(ctx, tr.path, status.UploadFailed)
	}
	c.data.Events.Publish(events.Event{Type: events.UploadFailed, CallLogID: callLogID, Path: tr.path, Msg: err.Error()})
	return errors.Wrap(err, "can't upload")
}

func (c *Coordinator) transition(ctx context.Context, path string, st status.Status) {
	if err := c.data.Statuses.Transition(ctx, path, st, ""); err != nil {
		goapp.Log.Error().Err(err).Str("path", path).Str("status", st.String()).Msg("can't set status")
	}
}

func (c *Coordinator) callUploaded(ctx context.Context, rec *persistence.CallRecord) error {
	rec.Uploaded = true
	if err := c.data.Calls.UpdateCall(ctx, rec); err != nil {
		return errors.Wrap(err, "can't mark call uploaded")
	}
	c.setWatermark(ctx, persistence.KeyLastTimeLog, rec.CallStartTime)
	return nil
}

func (c *Coordinator) fileUploaded(ctx context.Context, tr *tracked, serverID string) {
	if !tr.send {
		return
	}
	if err := c.data.Statuses.Transition(ctx, tr.path, status.UploadSuccess, serverID); err != nil {
		goapp.Log.Error().Err(err).Str("path", tr.path).Msg("can't set status")
	}
	c.setWatermark(ctx, persistence.KeyLastTimeRecording, tr.info.ModTime().UnixMilli())
	if c.data.Archiver != nil {
		if err := c.data.Archiver.Archive(ctx, tr.path); err != nil {
			goapp.Log.Error().Err(err).Str("path", tr.path).Msg("can't archive")
		}
	}
}

func (c *Coordinator) setWatermark(ctx context.Context, key string, v int64) {
	if err := c.data.Settings.SetSetting(ctx, key, strconv.FormatInt(v, 10)); err != nil {
		goapp.Log.Error().Err(err).Str("key", key).Msg("can't save watermark")
	}
}

func toCallData(rec *persistence.CallRecord) *backend.CallData {
	return &backend.CallData{UUID: rec.UUID, CallStartTime: rec.CallStartTime, Connected: rec.Connected,
		CallEndTime: rec.CallEndTime, DurationMs: rec.DurationMs,
		CallerNumber: utils.NormalizeLineNumber(rec.CallerNumber), Mobile: rec.Mobile}
}

// FileUUID returns name based (SHA-1) UUID of the file content
func FileUUID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "can't read %s", path)
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, b).String(), nil
}
