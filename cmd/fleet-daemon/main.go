package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/advisor"
	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/persistence"
	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/rest"
	"github.com/andrescamacho/fleetdispatch-go/internal/adapters/routing"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/engine"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/matcher"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/monitor"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/motion"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/predict"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/routemgr"
	"github.com/andrescamacho/fleetdispatch-go/internal/application/scheduler"
	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/config"
	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/database"
	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/logging"
	"github.com/andrescamacho/fleetdispatch-go/internal/infrastructure/pidfile"
	"github.com/andrescamacho/fleetdispatch-go/internal/state"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: search standard locations)")
	forceFlag := flag.Bool("force", false, "Kill any existing daemon and start a new one")
	flag.Parse()

	cfg := config.MustLoadConfig(*configPath)

	pf := pidfile.New(cfg.Daemon.PIDFile)
	if err := pf.Acquire(); err != nil {
		if !*forceFlag {
			log.Fatalf("Failed to acquire PID file lock: %v\nUse --force to kill the existing daemon", err)
		}
		if killErr := pf.KillExisting(); killErr != nil {
			log.Fatalf("Failed to kill existing daemon: %v", killErr)
		}
		if err := pf.Acquire(); err != nil {
			log.Fatalf("Failed to acquire PID file lock after killing existing daemon: %v", err)
		}
	}
	defer func() {
		if err := pf.Release(); err != nil {
			log.Printf("Warning: failed to release PID file: %v", err)
		}
	}()

	if err := run(cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("fleet-daemon starting",
		zap.String("database", cfg.Database.Type),
		zap.String("osrm", cfg.Routing.BaseURL))

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	journal, err := persistence.NewJournal(db, logger.Named("journal"))
	if err != nil {
		return fmt.Errorf("failed to initialize event journal: %w", err)
	}

	store := state.NewStore(cfg.Engine.EventRingSize, nil)
	store.SetSink(journal)

	osrm := routing.NewOSRMClientWithConfig(cfg.Routing.BaseURL, cfg.Routing.MaxRetries, cfg.Routing.BackoffBase, nil)
	planner := routing.NewCachedPlanner(osrm, cfg.Routing.Cache.Size, cfg.Routing.Cache.TTL, logger.Named("routing"))

	var adv advisor.Advisor
	if cfg.Advisor.APIKey != "" {
		adv = advisor.NewClient(cfg.Advisor.BaseURL, cfg.Advisor.APIKey, cfg.Advisor.Model)
		logger.Info("advisor enabled", zap.String("model", cfg.Advisor.Model))
	} else {
		adv = advisor.Disabled{}
		logger.Info("advisor disabled, agents use rule-based fallbacks")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	observerAgent := monitor.NewObserver(store, monitor.NewSimulatedSource(rng), nil, logger.Named("observer"))
	matcherAgent := matcher.New(store, planner, adv, nil, logger.Named("matcher"))
	matcherAgent.SetTargets(cfg.Engine.MinProfitMargin, cfg.Engine.TargetUtilization, 0, 0)
	motionAgent := motion.New(store, planner, nil, logger.Named("motion"))
	adapterAgent := routemgr.New(store, adv, nil, logger.Named("adapter"))
	adapterAgent.SetBudget(cfg.Engine.DetourBudgetKm, 0)

	eng := engine.New(engine.Deps{
		Store:     store,
		Observer:  observerAgent,
		Matcher:   matcherAgent,
		Motion:    motionAgent,
		Adapter:   adapterAgent,
		Predictor: predict.New(),
		Logger:    logger.Named("engine"),
		Rand:      rng,
		MotionDt:  cfg.Engine.MotionPeriod,
	})

	if _, err := eng.Initialize(context.Background(), cfg.Engine.NumVehicles, cfg.Engine.NumLoads); err != nil {
		return fmt.Errorf("failed to seed fleet: %w", err)
	}

	loop := scheduler.New(observerAgent, matcherAgent, motionAgent, adapterAgent, nil, logger.Named("loop"))
	loop.SetPeriods(cfg.Engine.MotionPeriod, cfg.Engine.ObserverPeriod, cfg.Engine.MatcherPeriod, cfg.Engine.AdapterPeriod)

	router := rest.NewRouter(rest.NewHandler(eng, logger.Named("rest")))
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("REST API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		<-loopDone
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	<-loopDone

	logger.Info("fleet-daemon stopped")
	return nil
}
