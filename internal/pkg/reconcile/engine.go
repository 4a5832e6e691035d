package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/airenas/callrec/internal/pkg/calllog"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
)

// CallLog is the platform call log
type CallLog interface {
	Rows(ctx context.Context, since int64) ([]*calllog.Row, error)
	LineNumber(ctx context.Context) (string, error)
}

// Locator finds recordings
type Locator interface {
	CheckAccess() error
	Locate(ctx context.Context, number string, callTime time.Time) (*persistence.RecordFile, error)
}

// CallStore keeps seen calls
type CallStore interface {
	GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error)
	InsertCall(ctx context.Context, rec *persistence.CallRecord) error
	UpdateCall(ctx context.Context, rec *persistence.CallRecord) error
}

// Settings keeps the install watermark
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Enqueuer schedules uploads
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *messages.UploadMessage) error
}

// Publisher sends events
type Publisher interface {
	Publish(ev events.Event)
}

// Data keeps engine dependencies
type Data struct {
	CallLog  CallLog
	Locator  Locator
	Calls    CallStore
	Settings Settings
	Queue    Enqueuer
	Events   Publisher
	// InstallTime is used as the watermark when none is stored, zero means now
	InstallTime time.Time
}

// Report summarizes a reconciliation pass
type Report struct {
	Trigger  string `json:"trigger"`
	Seen     int    `json:"seen"`
	New      int    `json:"new"`
	Retried  int    `json:"retried"`
	Uploaded int    `json:"uploaded"`
	Ignored  int    `json:"ignored"`
	Resolved int    `json:"resolved"`
}

// Engine reconciles the platform call log with the call store
type Engine struct {
	data  *Data
	lock  sync.Mutex
	nowF  func() time.Time
	uuidF func() string
}

// NewEngine creates engine
func NewEngine(data *Data) (*Engine, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Engine{data: data, nowF: time.Now, uuidF: func() string { return uuid.New().String() }}, nil
}

func validate(data *Data) error {
	if data == nil {
		return fmt.Errorf("no data")
	}
	if data.CallLog == nil {
		return fmt.Errorf("no call log")
	}
	if data.Locator == nil {
		return fmt.Errorf("no locator")
	}
	if data.Calls == nil {
		return fmt.Errorf("no call store")
	}
	if data.Settings == nil {
		return fmt.Errorf("no settings")
	}
	if data.Queue == nil {
		return fmt.Errorf("no queue")
	}
	if data.Events == nil {
		return fmt.Errorf("no events publisher")
	}
	return nil
}

// Run makes one pass, passes never overlap
func (e *Engine) Run(ctx context.Context, trigger string) (*Report, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	defer goapp.Estimate("reconcile")()

	res := &Report{Trigger: trigger}
	goapp.Log.Info().Str("trigger", trigger).Msg("reconcile")

	line, err := e.data.CallLog.LineNumber(ctx)
	if err != nil {
		return nil, e.checkPermission(err)
	}
	wm, stored, err := e.watermark(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := e.data.CallLog.Rows(ctx, wm)
	if err != nil {
		return nil, e.checkPermission(err)
	}
	if !stored {
		if err := e.data.Settings.SetSetting(ctx, persistence.KeyInstallTime, strconv.FormatInt(wm, 10)); err != nil {
			return nil, err
		}
		goapp.Log.Info().Time("at", time.UnixMilli(wm)).Msg("install watermark initialized")
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	st := &passState{line: utils.NormalizeLineNumber(line)}
	for _, r := range rows {
		res.Seen++
		if r.Type != calllog.TypeOutgoing || r.Date <= wm {
			res.Ignored++
			continue
		}
		if err := e.processRow(ctx, r, st, res); err != nil {
			return res, err
		}
	}
	goapp.Log.Info().Str("trigger", trigger).Int("seen", res.Seen).Int("new", res.New).Int("retried", res.Retried).
		Int("resolved", res.Resolved).Msg("reconcile done")
	return res, nil
}

type passState struct {
	line           string
	storageChecked bool
	storageDenied  bool
}

func (e *Engine) processRow(ctx context.Context, r *calllog.Row, st *passState, res *Report) error {
	rec, err := e.data.Calls.GetByCallLogID(ctx, r.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &persistence.CallRecord{CallLogID: r.ID, UUID: e.uuidF(), CallerNumber: st.line, Mobile: r.Number,
			CallStartTime: r.Date, Connected: r.Duration > 0, CallEndTime: r.Date + r.Duration*1000,
			DurationMs: r.Duration * 1000}
		if r.Duration != 0 {
			rec.RecordFilePath = e.resolve(ctx, rec, st)
		}
		if err := e.data.Calls.InsertCall(ctx, rec); err != nil {
			return err
		}
		res.New++
		if rec.RecordFilePath != "" {
			res.Resolved++
		}
		return e.enqueue(ctx, rec)
	}
	if rec.Uploaded {
		res.Uploaded++
		return nil
	}
	if rec.Connected && rec.RecordFilePath == "" {
		if path := e.resolve(ctx, rec, st); path != "" {
			rec.RecordFilePath = path
			if err := e.data.Calls.UpdateCall(ctx, rec); err != nil {
				return err
			}
			res.Resolved++
		}
	}
	res.Retried++
	return e.enqueue(ctx, rec)
}

func (e *Engine) resolve(ctx context.Context, rec *persistence.CallRecord, st *passState) string {
	if !st.storageChecked {
		st.storageChecked = true
		if err := e.data.Locator.CheckAccess(); err != nil {
			if p, ok := utils.PermissionDenied(err); ok {
				st.storageDenied = true
				e.data.Events.Publish(events.Event{Type: events.PermissionRequired, Permission: p})
			}
			goapp.Log.Warn().Err(err).Msg("storage is not accessible")
		}
	}
	if st.storageDenied {
		return ""
	}
	f, err := e.data.Locator.Locate(ctx, rec.Mobile, time.UnixMilli(rec.CallStartTime))
	if err != nil {
		goapp.Log.Warn().Err(err).Int64("callLogID", rec.CallLogID).Msg("can't locate recording")
		return ""
	}
	if f == nil {
		return ""
	}
	e.data.Events.Publish(events.Event{Type: events.CallRecorded, CallLogID: rec.CallLogID, Path: f.Path})
	return f.Path
}

func (e *Engine) enqueue(ctx context.Context, rec *persistence.CallRecord) error {
	if err := e.data.Queue.Enqueue(ctx, messages.NewCallMessage(rec.CallLogID)); err != nil {
		return fmt.Errorf("can't enqueue %d: %w", rec.CallLogID, err)
	}
	return nil
}

func (e *Engine) checkPermission(err error) error {
	if p, ok := utils.PermissionDenied(err); ok {
		goapp.Log.Warn().Str("permission", p).Msg("permission denied, pass aborted")
		e.data.Events.Publish(events.Event{Type: events.PermissionRequired, Permission: p})
	}
	return err
}

// watermark returns the install time and if it is already stored
func (e *Engine) watermark(ctx context.Context) (int64, bool, error) {
	v, err := e.data.Settings.GetSetting(ctx, persistence.KeyInstallTime)
	if err != nil {
		return 0, false, err
	}
	if v != "" {
		res, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("wrong %s '%s': %w", persistence.KeyInstallTime, v, err)
		}
		return res, true, nil
	}
	t := e.data.InstallTime
	if t.IsZero() {
		t = e.nowF()
	}
	return t.UnixMilli(), false, nil
}
