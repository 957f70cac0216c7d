package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/devadigapratham/printfarm/api"
	"github.com/devadigapratham/printfarm/api/handlers"
	"github.com/devadigapratham/printfarm/api/models"
	"github.com/devadigapratham/printfarm/config"
	"github.com/devadigapratham/printfarm/events"
	"github.com/devadigapratham/printfarm/raft"
	"github.com/devadigapratham/printfarm/registry"
	"github.com/devadigapratham/printfarm/scheduler"
	"github.com/devadigapratham/printfarm/storage"
	"github.com/hashicorp/go-hclog"
)

func main() {
	// Parse command line flags
	cfg := config.ParseFlags()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "printfarm",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: os.Stderr,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fleet and estimates
	seed := registry.DefaultFleet(cfg.FleetSize)
	var estimator scheduler.Estimator = scheduler.StaticEstimates{}
	if cfg.FleetFile != "" {
		fleet, err := config.LoadFleet(cfg.FleetFile)
		if err != nil {
			return err
		}
		seed = fleet.Printers
		estimator = fleet.Estimates
	}

	snapshots, err := registry.NewSnapshotStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open printer snapshots: %w", err)
	}
	printers, err := registry.New(seed,
		registry.WithSnapshotStore(snapshots),
		registry.WithLogger(logger.Named("registry")))
	if err != nil {
		return fmt.Errorf("failed to build printer registry: %w", err)
	}

	// Job store
	js := connectStore(ctx, cfg, logger, openStore)
	defer js.close()

	var journal *scheduler.Journal
	if js.store != nil {
		journal = scheduler.NewJournal(js.store, 1024, 5*time.Second, logger.Named("journal"))
	}

	bus := events.NewBus(256, logger.Named("events"))
	hub := events.NewHub(logger.Named("events"))
	go hub.Run(ctx, bus)

	sched := scheduler.New(scheduler.Config{
		Printers:  printers,
		Journal:   journal,
		Sink:      bus,
		Estimator: estimator,
		Logger:    logger.Named("scheduler"),
	})

	node := js.node
	var authority scheduler.Authority
	var transport *raft.Transport
	if node != nil {
		transport = raft.NewTransport(node)

		// Join the cluster if needed
		if cfg.JoinAddr != "" && !cfg.Bootstrap {
			logger.Info("joining cluster", "addr", cfg.JoinAddr)
			joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := transport.JoinCluster(joinCtx, cfg.JoinAddr, cfg.NodeID, cfg.RaftAddr); err != nil {
				// Continue anyway, an operator can add the node from the leader
				logger.Warn("failed to join cluster", "error", err)
			}
			cancel()
		}

		if err := node.WaitForLeader(30 * time.Second); err != nil {
			logger.Warn("no leader yet, recovery deferred until this node is elected", "error", err)
		}
		leadership := scheduler.NewLeadership(sched, node, replicatedJobs(node, js.store, logger), logger.Named("leadership"))
		go leadership.Watch(ctx, 250*time.Millisecond)
		authority = leadership
	} else if js.store != nil {
		scheduler.RecoverAndDrain(sched, js.jobs, logger.Named("recovery"))
	}

	go sched.Run(ctx, scheduler.RunOptions{
		Interval:  cfg.TickInterval,
		Authority: authority,
		AfterTick: func() {
			if err := printers.Persist(); err != nil {
				logger.Error("failed to persist printers", "error", err)
			}
		},
	})

	// Setup HTTP router
	handler := handlers.NewHandler(sched, printers, node, hub, logger.Named("api"))
	handler.Authority = authority
	router := api.SetupRouter(handler, transport)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	// Start the server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down HTTP server", "error", err)
	}

	if err := printers.Persist(); err != nil {
		logger.Error("failed to persist printers", "error", err)
	}
	journal.Close()

	logger.Info("shutdown complete")
	return nil
}

// openStore builds the job store selected by cfg. node is set for the raft store only.
func openStore(ctx context.Context, cfg *config.Config, logger hclog.Logger) (scheduler.JobStore, *raft.Node, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case config.StoreRaft:
		// Create Raft data directory if it doesn't exist
		if err := os.MkdirAll(cfg.RaftDir, 0755); err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create Raft directory: %w", err)
		}
		node, err := raft.NewNode(&raft.Config{
			NodeID:    cfg.NodeID,
			RaftAddr:  cfg.RaftAddr,
			RaftDir:   cfg.RaftDir,
			Bootstrap: cfg.Bootstrap,
			Peers:     cfg.Peers,
			Logger:    logger.Named("raft"),
		})
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to create Raft node: %w", err)
		}
		return raft.NewJobStore(node), node, func() {
			if err := node.Shutdown(); err != nil {
				logger.Warn("error shutting down Raft node", "error", err)
			}
		}, nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, nil, noop, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil, func() { s.Close() }, nil

	case config.StorePostgres:
		s, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil, s.Close, nil
	}

	return nil, nil, noop, nil
}

// jobStore is the opened job store. Every field but close is zero when the
// process runs memory-only.
type jobStore struct {
	store scheduler.JobStore
	node  *raft.Node
	close func()
	// jobs were loaded at startup; raft loads them on election instead
	jobs []models.PrintJob
}

type storeOpener func(ctx context.Context, cfg *config.Config, logger hclog.Logger) (scheduler.JobStore, *raft.Node, func(), error)

// connectStore opens the job store and, outside raft, loads its jobs. A store that
// cannot be opened or read leaves the process scheduling from memory alone.
func connectStore(ctx context.Context, cfg *config.Config, logger hclog.Logger, open storeOpener) *jobStore {
	memoryOnly := &jobStore{close: func() {}}

	store, node, closeStore, err := open(ctx, cfg, logger)
	if err != nil {
		logger.Error("job store unavailable, running memory-only", "store", cfg.Store,
			"error", &scheduler.PersistenceError{Op: "open", Err: err})
		return memoryOnly
	}
	if store == nil || node != nil {
		return &jobStore{store: store, node: node, close: closeStore}
	}

	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	jobs, err := store.FindAll(loadCtx)
	if err != nil {
		logger.Error("failed to load print jobs, running memory-only", "store", cfg.Store,
			"error", &scheduler.PersistenceError{Op: "load", Err: err})
		closeStore()
		return memoryOnly
	}
	return &jobStore{store: store, close: closeStore, jobs: jobs}
}

// replicatedJobs reads the jobs a newly elected leader recovers from
func replicatedJobs(node *raft.Node, store scheduler.JobStore, logger hclog.Logger) scheduler.Loader {
	return func(ctx context.Context) ([]models.PrintJob, error) {
		// Every committed entry must be applied before the jobs are read.
		if err := node.Barrier(10 * time.Second); err != nil {
			logger.Warn("raft barrier failed", "error", err)
		}
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return store.FindAll(loadCtx)
	}
}
