package service

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/messages"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/reconcile"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

type (
	// Reconciler runs a reconciliation pass
	Reconciler interface {
		Run(ctx context.Context, trigger string) (*reconcile.Report, error)
	}

	// CallLister lists stored calls
	CallLister interface {
		ListCalls(ctx context.Context, limit int) ([]*persistence.CallRecord, error)
	}

	// StatusProvider reads the upload ledger
	StatusProvider interface {
		GetStatus(ctx context.Context, path string) (status.Status, error)
		GetPending(ctx context.Context) ([]*persistence.UploadRecord, error)
	}

	// FileScanner lists recordings on the device
	FileScanner interface {
		Scan(ctx context.Context) ([]*persistence.RecordFile, error)
	}

	// Enqueuer schedules uploads
	Enqueuer interface {
		Enqueue(ctx context.Context, msg *messages.UploadMessage) error
	}

	// SessionKeeper saves the backend cookie
	SessionKeeper interface {
		Set(ctx context.Context, cookie string) error
		Clear(ctx context.Context) error
	}

	// Publisher sends events
	Publisher interface {
		Publish(ev events.Event)
	}

	// Liver checks the store
	Liver interface {
		Live(ctx context.Context) error
	}

	// WSConnHandler serves websocket connection
	WSConnHandler interface {
		HandleConnection(WsConn) error
	}
)

// Data keeps data required for service work
type Data struct {
	Port        int
	Engine      Reconciler
	Calls       CallLister
	Statuses    StatusProvider
	Files       FileScanner
	Queue       Enqueuer
	Session     SessionKeeper
	Events      Publisher
	DB          Liver
	WSHandler   WSConnHandler
	SettleDelay time.Duration

	scheduler *scheduler
}

const (
	defaultSettleDelay = 500 * time.Millisecond
	defaultCallLimit   = 100
)

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP callrec control service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 2 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("callrec", nil)
}

func initRoutes(data *Data) *echo.Echo {
	if data.scheduler == nil {
		data.scheduler = newScheduler(data.Engine, defaultV(data.SettleDelay, defaultSettleDelay))
	}
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/call/ended", callEnded(data))
	e.POST("/reconcile", runReconcile(data))
	e.GET("/calls", listCalls(data))
	e.GET("/files", listFiles(data))
	e.GET("/files/pending", listPending(data))
	e.POST("/files/upload", uploadFile(data))
	e.PUT("/session", setSession(data))
	e.DELETE("/session", clearSession(data))
	e.GET("/events", subscribeHandler(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.DB.Live(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusServiceUnavailable, "DB is not live")
		}
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK","db":"OK"}`))
	}
}

func callEnded(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		data.Events.Publish(events.Event{Type: events.CallEnded})
		data.scheduler.Schedule("call.ended")
		return c.NoContent(http.StatusAccepted)
	}
}

type permissionResult struct {
	Permission string `json:"permission"`
	Error      string `json:"error"`
}

func runReconcile(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("reconcile method")()

		res, err := data.Engine.Run(context.WithoutCancel(c.Request().Context()), "manual")
		if err != nil {
			if p, ok := utils.PermissionDenied(err); ok {
				return c.JSON(http.StatusForbidden, permissionResult{Permission: p, Error: "permission denied"})
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.JSON(http.StatusOK, res)
	}
}

type callItem struct {
	CallLogID      int64  `json:"callLogID"`
	UUID           string `json:"uuid"`
	Mobile         string `json:"mobile"`
	CallerNumber   string `json:"callerNumber,omitempty"`
	CallStartTime  int64  `json:"callStartTime"`
	CallEndTime    int64  `json:"callEndTime"`
	DurationMs     int64  `json:"durationMs"`
	Connected      bool   `json:"connected"`
	Uploaded       bool   `json:"uploaded"`
	RecordFilePath string `json:"recordFilePath,omitempty"`
}

func listCalls(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		limit := defaultCallLimit
		if ls := c.QueryParam("limit"); ls != "" {
			v, err := strconv.Atoi(ls)
			if err != nil || v < 1 {
				return echo.NewHTTPError(http.StatusBadRequest, "Wrong limit")
			}
			limit = v
		}
		recs, err := data.Calls.ListCalls(c.Request().Context(), limit)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]callItem, 0, len(recs))
		for _, r := range recs {
			res = append(res, mapCall(r))
		}
		return c.JSON(http.StatusOK, res)
	}
}

func mapCall(r *persistence.CallRecord) callItem {
	return callItem{CallLogID: r.CallLogID, UUID: r.UUID, Mobile: r.Mobile, CallerNumber: r.CallerNumber,
		CallStartTime: r.CallStartTime, CallEndTime: r.CallEndTime, DurationMs: r.DurationMs,
		Connected: r.Connected, Uploaded: r.Uploaded, RecordFilePath: r.RecordFilePath}
}

type fileItem struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Status     string    `json:"status"`
	ServerID   string    `json:"serverID,omitempty"`
}

func listFiles(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("files method")()

		ctx := c.Request().Context()
		files, err := data.Files.Scan(ctx)
		if err != nil {
			if p, ok := utils.PermissionDenied(err); ok {
				return c.JSON(http.StatusForbidden, permissionResult{Permission: p, Error: "permission denied"})
			}
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]fileItem, 0, len(files))
		for _, f := range files {
			st, err := data.Statuses.GetStatus(ctx, f.Path)
			if err != nil {
				goapp.Log.Error().Err(err).Send()
				return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
			}
			res = append(res, fileItem{Path: f.Path, Name: f.Name, Size: f.Size, Created: f.Created,
				DurationMs: f.Duration.Milliseconds(), Status: st.String()})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func listPending(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		recs, err := data.Statuses.GetPending(c.Request().Context())
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		res := make([]fileItem, 0, len(recs))
		for _, r := range recs {
			res = append(res, fileItem{Path: r.FilePath, Name: r.FileName, Size: r.FileSize, Created: r.Updated,
				Status: r.Status.String(), ServerID: r.ServerID})
		}
		return c.JSON(http.StatusOK, res)
	}
}

type uploadInput struct {
	Path string `json:"path"`
}

func uploadFile(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var input uploadInput
		if err := c.Bind(&input); err != nil {
			goapp.Log.Warn().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "Wrong input")
		}
		input.Path = strings.TrimSpace(input.Path)
		if input.Path == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No path")
		}
		if !utils.IsAudioFile(input.Path) {
			return echo.NewHTTPError(http.StatusBadRequest, "Not an audio file")
		}
		if !utils.FileExists(input.Path) {
			return echo.NewHTTPError(http.StatusNotFound, "No file")
		}
		if err := data.Queue.Enqueue(c.Request().Context(), messages.NewFileMessage(input.Path)); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.NoContent(http.StatusAccepted)
	}
}

type sessionInput struct {
	Cookie string `json:"cookie"`
}

func setSession(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		var input sessionInput
		if err := c.Bind(&input); err != nil {
			goapp.Log.Warn().Err(err).Send()
			return echo.NewHTTPError(http.StatusBadRequest, "Wrong input")
		}
		if strings.TrimSpace(input.Cookie) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "No cookie")
		}
		if err := data.Session.Set(c.Request().Context(), input.Cookie); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		// new session may unblock uploads that failed on expired login
		data.scheduler.Schedule("session")
		return c.NoContent(http.StatusNoContent)
	}
}

func clearSession(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		if err := data.Session.Clear(c.Request().Context()); err != nil {
			goapp.Log.Error().Err(err).Send()
			return echo.NewHTTPError(http.StatusInternalServerError, "Service error")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	}}

func subscribeHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			goapp.Log.Error().Err(err).Send()
			return err
		}
		defer ws.Close()

		return data.WSHandler.HandleConnection(ws)
	}
}

func validate(data *Data) error {
	if data == nil {
		return errors.New("no data")
	}
	if data.Engine == nil {
		return errors.New("no reconcile engine")
	}
	if data.Calls == nil {
		return errors.New("no call store")
	}
	if data.Statuses == nil {
		return errors.New("no status store")
	}
	if data.Files == nil {
		return errors.New("no file scanner")
	}
	if data.Queue == nil {
		return errors.New("no queue")
	}
	if data.Session == nil {
		return errors.New("no session")
	}
	if data.Events == nil {
		return errors.New("no events publisher")
	}
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.WSHandler == nil {
		return errors.New("no WSHandler")
	}
	return nil
}

func defaultV[T comparable](v, d T) T {
	var e T
	if v == e {
		return d
	}
	return v
}
