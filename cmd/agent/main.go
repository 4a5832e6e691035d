package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	ainform "github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/callrec/internal/pkg/archive"
	"github.com/airenas/callrec/internal/pkg/backend"
	"github.com/airenas/callrec/internal/pkg/calllog"
	"github.com/airenas/callrec/internal/pkg/clean"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/inform"
	"github.com/airenas/callrec/internal/pkg/locator"
	"github.com/airenas/callrec/internal/pkg/persistence"
	"github.com/airenas/callrec/internal/pkg/postgres"
	"github.com/airenas/callrec/internal/pkg/reconcile"
	"github.com/airenas/callrec/internal/pkg/service"
	"github.com/airenas/callrec/internal/pkg/session"
	"github.com/airenas/callrec/internal/pkg/sqlite"
	"github.com/airenas/callrec/internal/pkg/status"
	"github.com/airenas/callrec/internal/pkg/upload"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/color"
	"github.com/spf13/viper"
)

// store is implemented by both sqlite and postgres backends
type store interface {
	GetByCallLogID(ctx context.Context, id int64) (*persistence.CallRecord, error)
	InsertCall(ctx context.Context, rec *persistence.CallRecord) error
	UpdateCall(ctx context.Context, rec *persistence.CallRecord) error
	ListCalls(ctx context.Context, limit int) ([]*persistence.CallRecord, error)
	UpsertPending(ctx context.Context, f *persistence.RecordFile) (int64, error)
	GetUpload(ctx context.Context, path string) (*persistence.UploadRecord, error)
	GetStatus(ctx context.Context, path string) (status.Status, error)
	Transition(ctx context.Context, path string, st status.Status, serverID string) error
	IsHashUploaded(ctx context.Context, hash string) (bool, error)
	GetPending(ctx context.Context) ([]*persistence.UploadRecord, error)
	GetExpiredUploads(ctx context.Context, olderThan time.Time) ([]*persistence.UploadRecord, error)
	DeleteUpload(ctx context.Context, path string) error
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
	Live(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "can't load .env: %v\n", err)
	}
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	var pool *pgxpool.Pool
	if cfg.GetString("db.url") != "" {
		var err error
		pool, err = initPool(ctx, cfg.GetString("db.url"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init db pool")
		}
		defer pool.Close()
	}

	db, closeF, err := initStore(ctx, cfg, pool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init store")
	}
	defer closeF()

	bus := events.NewBus(defaultV(cfg.GetInt("events.size"), 100))
	sess, err := session.NewStore(db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init session")
	}
	bcl, err := backend.NewClient(cfg.GetString("backend.url"), sess)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init backend client")
	}

	uData := &upload.Data{Calls: db, Statuses: db, Settings: db, Backend: bcl, Session: sess, Events: bus}
	if cfg.GetString("archive.bucket") != "" {
		filer, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("archive.bucket"),
			URL: cfg.GetString("archive.url"), User: cfg.GetString("archive.user"), Key: cfg.GetString("archive.key")})
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init archive filer")
		}
		if uData.Archiver, err = archive.NewArchiver(filer, cfg.GetString("archive.prefix")); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init archiver")
		}
	}
	coordinator, err := upload.NewCoordinator(uData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init upload coordinator")
	}

	var queue reconcile.Enqueuer
	var queueDone <-chan struct{}
	switch mode := defaultV(cfg.GetString("queue.mode"), "local"); mode {
	case "local":
		q := upload.NewQueue(coordinator, defaultV(cfg.GetInt("queue.size"), 1000))
		q.Start(ctx)
		defer q.Close()
		queue, queueDone = q, q.Done()
	case "postgres":
		if pool == nil {
			goapp.Log.Fatal().Msg("queue.mode=postgres needs db.url")
		}
		if queue, err = postgres.NewSender(pool); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
		}
	default:
		goapp.Log.Fatal().Str("mode", mode).Msg("unknown queue mode")
	}

	loc, err := initLocator(ctx, cfg)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init locator")
	}

	installTime, err := parseTime(cfg.GetString("reconcile.installTime"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("wrong reconcile.installTime")
	}
	engine, err := reconcile.NewEngine(&reconcile.Data{CallLog: calllog.NewSource(cfg.GetString("calllog.lineNumber")),
		Locator: loc, Calls: db, Settings: db, Queue: queue, Events: bus, InstallTime: installTime})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init reconcile engine")
	}

	if cfg.GetString("inform.to") != "" {
		if err := startInform(ctx, cfg, bus); err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start inform")
		}
	}

	if exp := cfg.GetDuration("clean.expiresAfter"); exp > 0 {
		cleaner, err := clean.NewCleaner(&clean.Data{Store: db, ExpiresAfter: exp, Interval: cfg.GetDuration("clean.interval")})
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init cleaner")
		}
		cleaner.Start(ctx)
	}

	go runPeriodic(ctx, engine, cfg.GetDuration("reconcile.interval"))
	go utils.RunPerfEndpoint(cfg.GetInt("debug.port"))

	data := &service.Data{Port: defaultV(cfg.GetInt("port"), 8000), Engine: engine, Calls: db, Statuses: db,
		Files: loc, Queue: queue, Session: sess, Events: bus, DB: db, WSHandler: service.NewWSConnKeeper(bus),
		SettleDelay: cfg.GetDuration("reconcile.settleDelay")}

	errCh := make(chan error, 1)
	go func() {
		errCh <- service.StartWebServer(data)
	}()

	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case err := <-errCh:
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't start web server")
		}
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	if queueDone != nil {
		select {
		case <-queueDone:
			goapp.Log.Info().Msg("All code returned. Now exit. Bye")
		case <-time.After(time.Second * 15):
			goapp.Log.Warn().Msg("Timeout gracefull shutdown")
		}
	}
}

func initPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")
	return pgxpool.NewWithConfig(ctx, dbConfig)
}

func initStore(ctx context.Context, cfg *viper.Viper, pool *pgxpool.Pool) (store, func(), error) {
	switch st := defaultV(cfg.GetString("store"), "sqlite"); st {
	case "sqlite":
		path := defaultV(cfg.GetString("sqlite.path"), defaultDBPath())
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("can't create dir for %s: %w", path, err)
		}
		goapp.Log.Info().Str("path", path).Msg("sqlite store")
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("store=postgres needs db.url")
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("can't migrate: %w", err)
		}
		db, err := postgres.NewDB(pool, utils.FileHash)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store '%s'", st)
	}
}

func defaultDBPath() string {
	return filepath.Join(xdg.DataHome, "callrec", "callrec.db")
}

func initLocator(ctx context.Context, cfg *viper.Viper) (*locator.Locator, error) {
	device := locator.ReadDevice(ctx, locator.Device{Brand: cfg.GetString("device.brand"),
		Manufacturer: cfg.GetString("device.manufacturer"), Display: cfg.GetString("device.display"),
		Fingerprint: cfg.GetString("device.fingerprint")}, locator.GetProp)
	res, err := locator.NewLocator(defaultV(cfg.GetString("locator.root"), locator.DefaultRoot), device)
	if err != nil {
		return nil, err
	}
	res.WithMatchWindow(cfg.GetDuration("locator.matchWindow")).WithDepth(defaultV(cfg.GetInt("locator.depth"), locator.DefaultDepth))
	if roots := cfg.GetStringSlice("locator.searchRoots"); len(roots) > 0 {
		res.WithSearchRoots(roots...)
	}
	goapp.Log.Info().Str("root", res.Root()).Str("vendor", res.Vendor()).Str("brand", device.Brand).Msg("locator")
	return res, nil
}

func startInform(ctx context.Context, cfg *viper.Viper, bus *events.Bus) error {
	data := &inform.ServiceData{Events: bus, RepeatAfter: defaultV(cfg.GetDuration("inform.repeatAfter"), time.Hour)}
	var err error
	if data.EmailMaker, err = inform.NewMaker(cfg); err != nil {
		return err
	}
	if cfg.GetString("smtp.fakeUrl") == "" {
		goapp.Log.Info().Str("sender", "real").Msg("smtp")
		data.EmailSender, err = ainform.NewSimpleEmailSender(cfg)
	} else {
		goapp.Log.Info().Str("sender", "fake").Msg("smtp")
		data.EmailSender, err = inform.NewFakeEmailSender(cfg)
	}
	if err != nil {
		return fmt.Errorf("can't init email sender: %w", err)
	}
	_, err = inform.StartWorkerService(ctx, data)
	return err
}

type runner interface {
	Run(ctx context.Context, trigger string) (*reconcile.Report, error)
}

// runPeriodic makes a pass on start and then every interval, zero interval means start only
func runPeriodic(ctx context.Context, engine runner, interval time.Duration) {
	run := func(trigger string) {
		if _, err := engine.Run(ctx, trigger); err != nil {
			goapp.Log.Error().Err(err).Str("trigger", trigger).Msg("reconcile failed")
		}
	}
	run("start")
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run("timer")
		}
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func defaultV[T comparable](v, d T) T {
	var e T
	if v == e {
		return d
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
            ____                          
  _________ _/ / /_______  _____
 / ___/ __ '/ / / ___/ _ \/ ___/
/ /__/ /_/ / / / /  /  __/ /__  
\___/\__,_/_/_/_/   \___/\___/  v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/callrec"))
}
