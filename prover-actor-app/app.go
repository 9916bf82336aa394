package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/proof-actor/metrics"
	"github.com/compose-network/proof-actor/prover-actor-app/config"
	apisrv "github.com/compose-network/proof-actor/server/api"
	apimw "github.com/compose-network/proof-actor/server/api/middleware"
	"github.com/compose-network/proof-actor/x/engine"
	"github.com/compose-network/proof-actor/x/engine/chaindata"
	"github.com/compose-network/proof-actor/x/engine/remote"
	"github.com/compose-network/proof-actor/x/reqactor"
	reqhttp "github.com/compose-network/proof-actor/x/reqactor/http"
	"github.com/compose-network/proof-actor/x/reqpool"
)

// App represents the proof request actor application
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	rootLog zerolog.Logger
	start   time.Time

	pool       *reqpool.MemoryPool
	chainSpecs engine.SupportedChainSpecs
	engine     *remote.Client
	actor      *reqactor.Actor

	// API server (HTTP)
	apiServer *apisrv.Server

	cancel      context.CancelFunc
	cancelActor context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:     cfg,
		log:     log.With().Str("component", "app").Logger(),
		rootLog: log,
		start:   time.Now(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(_ context.Context) error {
	specs, err := engine.LoadChainSpecs(a.cfg.Chains.SpecFile)
	if err != nil {
		return fmt.Errorf("failed to load chain specs: %w", err)
	}
	a.chainSpecs = specs
	a.log.Info().Strs("networks", specs.Names()).Msg("Chain specs loaded")

	httpClient := &http.Client{Timeout: a.cfg.Engine.Timeout}
	client, err := remote.NewClient(a.cfg.Engine.BaseURL, httpClient, a.cfg.Engine.PollInterval, a.rootLog)
	if err != nil {
		return fmt.Errorf("failed to create proving engine client: %w", err)
	}
	a.engine = client

	a.pool = reqpool.NewMemoryPool(a.rootLog)

	a.initializeAPIServer()
	return nil
}

// initializeAPIServer sets up the HTTP API server; request routes are bound once the actor runs.
func (a *App) initializeAPIServer() {
	s := apisrv.NewServer(a.cfg.API, a.rootLog)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log, "/health", "/ready", a.cfg.Metrics.Path))

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	// Metrics
	if a.cfg.Metrics.Enabled {
		httpMetrics := apimw.NewHTTPMetrics(metrics.NewComponentRegistry("prover", "api"))
		s.Router.Use(httpMetrics.Middleware)
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.apiServer = s
}

func (a *App) actorConfig() reqactor.Config {
	cfg := reqactor.DefaultConfig(a.rootLog)
	cfg.Pool = a.pool
	cfg.ChainSpecs = a.chainSpecs
	cfg.Engine = a.engine
	cfg.Providers = chaindata.Factory(a.rootLog)
	cfg.MaxProvingConcurrency = a.cfg.Actor.MaxProvingConcurrency
	cfg.InternalChannelSize = a.cfg.Actor.InternalChannelSize
	cfg.RecheckInterval = a.cfg.Actor.RecheckInterval
	cfg.SignalRetryInterval = a.cfg.Actor.SignalRetryInterval
	if a.cfg.Metrics.Enabled {
		cfg.Metrics = reqactor.NewMetrics()
	}
	return cfg
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Proving outlives runCtx so shutdown can drain in-flight work.
	actorCtx, cancelActor := context.WithCancel(context.WithoutCancel(ctx))
	a.cancelActor = cancelActor

	actor, err := reqactor.Start(actorCtx, a.actorConfig())
	if err != nil {
		cancelActor()
		return fmt.Errorf("failed to start request actor: %w", err)
	}
	a.actor = actor

	recovered, err := actor.Recover(runCtx)
	if err != nil {
		a.log.Error().Err(err).Msg("Request pool recovery failed")
	} else if recovered > 0 {
		a.log.Info().Int("requests", recovered).Msg("Resumed pending requests")
	}

	reqhttp.NewHandler(actor, a.rootLog).RegisterMux(a.apiServer.Router)

	go a.statsReporter(runCtx)

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
			cancel()
		}
	}()

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Msg("Proof request actor started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	return a.shutdown()
}

// shutdown halts the actor, stops the HTTP server and drains in-flight proving.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	pauseCtx, cancelPause := context.WithTimeout(context.Background(), 5*time.Second)
	if err := a.actor.Pause(pauseCtx); err != nil {
		a.log.Warn().Err(err).Msg("Failed to halt request actor")
	}
	cancelPause()

	if a.cancel != nil {
		a.cancel()
	}

	a.actor.Close()

	drained := make(chan struct{})
	go func() {
		a.actor.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		a.log.Info().Msg("In-flight proving drained")
	case <-time.After(a.cfg.Actor.DrainTimeout):
		stats := a.actor.GateStats()
		a.log.Warn().
			Int64("in_use", stats.InUse).
			Int64("waiting", stats.Waiting).
			Msg("Drain timeout, aborting in-flight proving")
		a.cancelActor()
		<-drained
	}
	a.cancelActor()

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}

func (a *App) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	code := http.StatusOK

	switch {
	case a.actor == nil:
		status, code = "starting", http.StatusServiceUnavailable
	case a.actor.Halted():
		status, code = "halted", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":"%s"}`, status)
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.GetStats(r.Context())
	if err != nil {
		apisrv.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// GetStats returns application statistics.
func (a *App) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"app_version":    Version,
		"app_build_time": BuildTime,
		"app_git_commit": GitCommit,
		"uptime_seconds": time.Since(a.start).Seconds(),
		"networks":       a.chainSpecs.Names(),
	}
	if a.actor == nil {
		return stats, nil
	}

	entries, err := a.pool.List(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[reqpool.StatusKind]int)
	for _, e := range entries {
		byStatus[e.Status.Kind()]++
	}

	stats["halted"] = a.actor.Halted()
	stats["gate"] = a.actor.GateStats()
	stats["requests_total"] = len(entries)
	stats["requests_by_status"] = byStatus
	return stats, nil
}

// statsReporter periodically reports application statistics.
func (a *App) statsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := a.GetStats(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("Failed to collect statistics")
				continue
			}
			gate := a.actor.GateStats()
			a.log.Info().
				Int("requests_total", stats["requests_total"].(int)).
				Int64("proving_in_use", gate.InUse).
				Int64("proving_waiting", gate.Waiting).
				Bool("halted", a.actor.Halted()).
				Float64("uptime_seconds", stats["uptime_seconds"].(float64)).
				Msg("Request actor statistics")
		}
	}
}
