package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echogw "github.com/victorpuello/kampus-sub004/apps/gateway/echo"
	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
	"github.com/victorpuello/kampus-sub004/core/user"
	emailsvc "github.com/victorpuello/kampus-sub004/services/email"
	"github.com/victorpuello/kampus-sub004/services/kampusapi"
	logsvc "github.com/victorpuello/kampus-sub004/services/logger"
	"github.com/victorpuello/kampus-sub004/storage/database"
	"github.com/victorpuello/kampus-sub004/storage/database/inmem"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "GATEWAY : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up the snapshot archive
	archive, db, err := setUpArchive(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up archive: %v", err), err)
	}
	if db != nil {
		defer func() {
			if err = db.Close(); err != nil {
				logger.Error("failed to close DB", err)
			}
		}()
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	kampus := kampusapi.NewClient(conf, logger)
	if conf.Kampus.Username != "" {
		if _, err = kampus.Login(context.Background(), conf.Kampus.Username, conf.Kampus.Password); err != nil {
			logger.Fatal(fmt.Sprintf("logging in to the Kampus API: %v", err), err)
		}
	}

	relay := echogw.NewRelay()
	feed := live.NewOrchestrator(live.Options{
		Fetcher:      kampus,
		Streams:      kampus,
		Logger:       logger,
		PollInterval: conf.Monitor.PollInterval,
		PushEnabled:  conf.Monitor.PushEnabled,
		// stop hitting the upstream while nobody is watching
		Active: relay.HasSubscribers,
	})
	defer feed.Stop()

	notifier := newAlertNotifier(conf, mailSvc)
	feed.OnApply(relay.Broadcast)
	feed.OnApply(notifier.Notify)
	feed.OnApply(archiveHook(feed, archive, logger))

	// start monitoring right away when a default process is configured
	if conf.Monitor.ProcessID > 0 {
		cfg, err := live.Preset(conf.Monitor.Preset)
		if err != nil {
			logger.Fatal(fmt.Sprintf("invalid monitor preset: %v", err), err)
		}
		feed.Reconfigure(conf.Monitor.ProcessID, cfg)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Gateway Service

	server := echogw.NewServer(echogw.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Feed:       feed,
		Kampus:     kampus,
		Archive:    archive,
		Relay:      relay,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpArchive returns the Postgres-backed archive when the DB is enabled,
// an in-memory one otherwise.
func setUpArchive(conf *core.Config) (live.Archive, *sql.DB, error) {
	if !conf.Database.Enabled {
		return inmem.NewSnapshotArchive(), nil, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, nil, err
	}
	if err = database.Migrate(db, conf); err != nil {
		return nil, nil, err
	}
	return database.NewSnapshotArchive(db), db, nil
}

// archiveHook records each applied snapshot behind the feed; archive failures
// are logged and never disturb the feed itself.
func archiveHook(feed *live.Orchestrator, archive live.Archive, logger core.Logger) func(*live.Snapshot) {
	return func(snap *live.Snapshot) {
		processID, _ := feed.Config()
		go func() {
			if err := archive.SaveSnapshot(context.Background(), processID, snap); err != nil {
				logger.Error(fmt.Sprintf("archiving snapshot: %v", err), err)
			}
		}()
	}
}
