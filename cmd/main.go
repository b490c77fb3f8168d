// FilePath: cmd/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tm "github.com/buger/goterm"
	"github.com/hibiken/asynq"
	"github.com/itsatony/relayhub/api"
	"github.com/itsatony/relayhub/api/middleware"
	"github.com/itsatony/relayhub/api/resources"
	"github.com/itsatony/relayhub/internal/config"
	"github.com/itsatony/relayhub/internal/database"
	"github.com/itsatony/relayhub/internal/notify"
	"github.com/itsatony/relayhub/internal/presence"
	"github.com/itsatony/relayhub/internal/profiles"
	"github.com/itsatony/relayhub/internal/reporting"
	"github.com/itsatony/relayhub/internal/server"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/itsatony/relayhub/internal/tokens"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

func main() {
	// Clear console and draw logo
	ClearConsole()
	DrawLogo()
	// Initialize version info
	nuts.InitVersion()
	nuts.L.Infof("[Main] Starting RelayHub Server v%s", nuts.GetVersion())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Persistence is optional: without postgres the relay runs in-memory.
	var tokenRepo tokens.Repository
	var profileRepo profiles.Repository
	db, err := database.NewPostgresDB(cfg.Postgres)
	if err != nil {
		nuts.L.Warnf("[Main] Postgres unavailable, running in-memory: %v", err)
	} else {
		tokenRepo = tokens.NewPostgresTokenRepository(db)
		profileRepo = profiles.NewPostgresProfileRepository(db)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	backend := reporting.NewRedisCollector(rdb, cfg.Reporting.StreamMaxLen)
	collector := reporting.NewAsyncCollector(backend, cfg.Reporting.QueueSize, cfg.Reporting.Workers)

	asynqRedis := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	dispatcher := notify.NewQueueDispatcher(asynqRedis)
	worker := notify.NewWorker(asynqRedis, cfg.Notifications.QueueConcurrency, notify.LogSender{})
	if err := worker.Start(); err != nil {
		log.Fatalf("Failed to start notification worker: %v", err)
	}

	registry := session.NewRegistry()
	tokenManager := tokens.NewManager()
	tracker := presence.New(dispatcher)

	srv := server.New(cfg, server.Deps{
		Registry:   registry,
		Tokens:     tokenManager,
		TokenRepo:  tokenRepo,
		Profiles:   profileRepo,
		Presence:   tracker,
		Dispatcher: dispatcher,
		Collector:  collector,
		Trimmer:    backend,
	})
	if err := srv.Start(); err != nil {
		nuts.L.Errorf("[Main] Server error: %v", err)
		os.Exit(1)
	}

	adminRouter := api.NewRouter(resources.Deps{
		Registry:  registry,
		Tokens:    tokenManager,
		TokenRepo: tokenRepo,
	}, middleware.AuthConfig{Token: cfg.Admin.AuthToken})
	adminSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Admin.Port),
		Handler:      adminRouter.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		nuts.L.Infof("[Main] Admin API on %s", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Main] Admin API error: %v", err)
		}
	}()

	waitForShutdown(cfg, srv, adminSrv, worker, dispatcher, collector, rdb, db)
}

func waitForShutdown(cfg *config.Config, srv *server.Server, adminSrv *http.Server,
	worker *notify.Worker, dispatcher *notify.QueueDispatcher,
	collector *reporting.AsyncCollector, rdb *redis.Client, db database.DB) {

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Main] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := adminSrv.Shutdown(ctx); err != nil {
		nuts.L.Warnf("[Main] Admin API shutdown: %v", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		nuts.L.Warnf("[Main] Server shutdown: %v", err)
	}
	worker.Shutdown()
	dispatcher.Close()
	collector.Close()
	rdb.Close()
	if db != nil {
		db.Close()
	}

	nuts.L.Infof("[Main] Shut down successfully")
}

// ClearConsole clears the console screen and draws the logo.
func ClearConsole() {
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

func DrawLogo() {
	fmt.Println()
	lines := []string{
		"    ____       __            __  __      __  ",
		"   / __ \\___  / /___ ___  __/ / / /_  __/ /_ ",
		"  / /_/ / _ \\/ / __ `/ / / / /_/ / / / / __ \\",
		" / _, _/  __/ / /_/ / /_/ / __  / /_/ / /_/ /",
		"/_/ |_|\\___/_/\\__,_/\\__, /_/ /_/\\__,_/_.___/ ",
		"                   /____/ .................  " + nuts.GetVersion(),
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}
