// Skeld - Among Us room server.
//
// Skeld hosts game rooms over websockets, drives each room at a fixed tick
// rate, records finished matches to SQLite, exposes a REST API for remote
// control and publishes live room events via MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/api"
	"github.com/skeld-project/skeld/internal/cli"
	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/db"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/network"
	"github.com/skeld-project/skeld/internal/scheduler"
	"github.com/skeld-project/skeld/internal/server"
	"github.com/skeld-project/skeld/internal/telemetry"
	"github.com/skeld-project/skeld/internal/util"
)

const (
	AppName    = "Skeld"
	AppVersion = api.Version
	Banner     = `
   _____ _        _     _
  / ____| |      | |   | |
 | (___ | | _____| | __| |
  \___ \| |/ / _ \ |/ _' |
  ____) |   <  __/ | (_| |
 |_____/|_|\_\___|_|\__,_|  v%s
 Among Us room server
`
	lagCheckInterval = time.Minute
	shutdownTimeout  = 30 * time.Second
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	setup := flag.Bool("setup", false, "run the interactive setup wizard and exit")
	noCLI := flag.Bool("no-cli", false, "disable the interactive console")
	flag.Parse()

	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Skeld")

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *setup {
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
		return
	}

	app := cfg.GetApplicationData()
	logCfg := util.DefaultLogConfig()
	logCfg.Level = app.Logging.Level
	logCfg.Directory = app.Logging.Directory
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if !cfg.IsFirstRun() {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg); err != nil {
			log.Fatal().Err(err).Msg("setup wizard failed")
		}
		app = cfg.GetApplicationData()
	}

	if !config.IsPortAvailable(app.API.Port) {
		log.Warn().Int("port", app.API.Port).Msg("HTTP port is in use, will keep retrying")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	mgr, err := server.NewManager(cfg, eventBus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create room manager")
	}

	hub := network.NewHub(mgr, app.Security.AllowedOrigins, app.Spectator.SendBufferSize)
	mgr.SetTransport(hub)

	var store *db.MatchStore
	if app.Storage.Enabled {
		store, err = db.NewMatchStore(app.Storage.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open match store, history disabled")
			store = nil
		} else {
			store.Subscribe(eventBus)
		}
	}

	var mqttHandler *telemetry.MQTTHandler
	if app.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus, mgr)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	sched := scheduler.NewScheduler(cfg, mgr)
	if store != nil {
		sched.SetAlertStore(store)
	}

	apiServer := api.NewServer(cfg, eventBus, mgr, hub, store)

	// A "quit" from the console arrives as a shutdown event.
	quitCh := make(chan struct{})
	var quitOnce sync.Once
	eventBus.Subscribe(events.EventShutdown, "main", func(_ context.Context, _ events.Event) error {
		quitOnce.Do(func() { close(quitCh) })
		return nil
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", app.API.Port).Msg("starting HTTP server")
		if err := startWithRetry(ctx, "HTTP server", apiServer.Start, 15); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("HTTP server failed after retries")
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mgr.LagMonitor().Start(ctx, lagCheckInterval)
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	if !*noCLI {
		cliHandler := cli.NewCLI(cfg, eventBus, mgr, store)
		// The console blocks on stdin, so it is not waited for.
		go cliHandler.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "main"})
	case <-quitCh:
		log.Info().Msg("shutdown requested from console")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	hub.Close()
	mgr.StopAll()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(shutdownTimeout):
		log.Warn().Dur("timeout", shutdownTimeout).Msg("shutdown timed out, forcing exit")
	}

	eventBus.Stop()

	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close match store")
		}
	}

	log.Info().Msg("Skeld stopped")
}

// startWithRetry retries startFn on bind errors with a fixed 3 second delay.
// It returns nil on success, or the last error once the retries run out.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
