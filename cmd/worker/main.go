package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/callrec/internal/pkg/archive"
	"github.com/airenas/callrec/internal/pkg/backend"
	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/callrec/internal/pkg/postgres"
	"github.com/airenas/callrec/internal/pkg/session"
	"github.com/airenas/callrec/internal/pkg/upload"
	"github.com/airenas/callrec/internal/pkg/utils"
	"github.com/airenas/callrec/internal/pkg/worker"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &worker.ServiceData{}
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	if err := postgres.Migrate(ctx, dbPool); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't migrate db")
	}

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.Testing = cfg.GetBool("worker.testing")
	data.Timeout = cfg.GetDuration("worker.timeout")

	db, err := postgres.NewDB(dbPool, utils.FileHash)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	sess, err := session.NewStore(db)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init session")
	}
	bcl, err := backend.NewClient(cfg.GetString("backend.url"), sess)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init backend client")
	}
	// nobody listens in the worker, events are logged by the bus
	uData := &upload.Data{Calls: db, Statuses: db, Settings: db, Backend: bcl, Session: sess, Events: events.NewBus(1)}
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
	data.Handler, err = upload.NewCoordinator(uData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init upload coordinator")
	}

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := worker.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}
	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-doneCh:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
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
						   
                      __            
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /    
|__/|__/\____/_/  /_/|_|\___/_/     
							  
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/airenas/callrec"))
}
