package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"corpusd/internal/db"
	"corpusd/internal/index"
	"corpusd/internal/ingest"
	"corpusd/internal/locks"
	"corpusd/internal/scheduler"
	"corpusd/internal/search"
	"corpusd/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the corpusd server and its maintenance scheduler",
	Long: `Starts the HTTP server (content ingestion and search APIs) and the
scheduler worker. Multiple server processes may share one data directory;
lease-based locks guarantee each maintenance job runs on exactly one
worker at a time.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	embedder, err := createEmbedder(cfg)
	if err != nil {
		return err
	}

	store := index.NewStore(embedder)
	if err := store.Load(context.Background(), cfg.Server.DataDir); err != nil {
		logger.Warn("could not load index snapshot, starting empty", "error", err)
	}

	database, err := db.Open(filepath.Join(cfg.Server.DataDir, "corpusd.db"))
	if err != nil {
		return err
	}
	defer database.Close()

	ingestSvc := ingest.NewService(store, database, logger, cfg.Server.MaxConcurrency)

	var reranker search.Reranker
	if cfg.Rerank.URL != "" {
		reranker = search.NewHTTPReranker(cfg.Rerank.URL, cfg.Rerank.Model, cfg.Rerank.Timeout)
	}
	engine := search.NewEngine(store, reranker, logger)

	lockMgr := locks.NewManager(database)
	sched := scheduler.New(lockMgr, logger)
	sched.Register(scheduler.Job{
		Name:     "index-snapshot",
		Interval: cfg.Jobs.SnapshotInterval,
		Lease:    cfg.Jobs.Lease,
		Run: func(ctx context.Context) error {
			return store.Persist(ctx, cfg.Server.DataDir)
		},
	})
	sched.Register(scheduler.Job{
		Name:     "ledger-sweep",
		Interval: cfg.Jobs.SweepInterval,
		Lease:    cfg.Jobs.Lease,
		Run:      ingestSvc.SweepLedger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	srv := server.New(server.Config{Addr: cfg.Server.Addr, AllowAll: cfg.Server.AllowAll},
		ingestSvc, engine, lockMgr, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		sched.Stop()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Final snapshot so a clean shutdown never loses the in-memory index.
	return store.Persist(context.Background(), cfg.Server.DataDir)
}
