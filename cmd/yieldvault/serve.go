package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/LeoVS09/simple-yield-farm/internal/config"
	"github.com/LeoVS09/simple-yield-farm/internal/core"
	"github.com/LeoVS09/simple-yield-farm/internal/ingestion"
	"github.com/LeoVS09/simple-yield-farm/internal/ledger"
	fpmath "github.com/LeoVS09/simple-yield-farm/internal/math"
	"github.com/LeoVS09/simple-yield-farm/internal/observability"
	"github.com/LeoVS09/simple-yield-farm/internal/persistence"
	"github.com/LeoVS09/simple-yield-farm/internal/projection"
	"github.com/LeoVS09/simple-yield-farm/internal/query"
	"github.com/LeoVS09/simple-yield-farm/internal/server"
	"github.com/LeoVS09/simple-yield-farm/internal/strategy"
	"github.com/LeoVS09/simple-yield-farm/internal/vault"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the vault service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger := observability.NewLoggerTo(cmd.OutOrStdout(), "yieldvault", cfg.LogLevel, cfg.LogFormat)
			if err := serve(cmd.Context(), cfg, logger); err != nil {
				logger.Error().Err(err).Msg("service stopped")
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (ignored when missing)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if err := persistence.NewMigrator(db, cfg.MigrationsDir, logger).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()
	health.AddCheck("postgres", db.PingContext)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer nc.Close()
	if err := ingestion.EnsureStreams(ctx, js, cfg.StreamName, cfg.EventStreamName); err != nil {
		return err
	}
	health.AddCheck("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	})

	// --- Vault ---
	book, v, err := buildVault(ctx, cfg, nc, logger)
	if err != nil {
		return err
	}
	vcfg := v.Config()

	persistChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	committed := make(chan core.CoreOutput, cfg.PublishChanSize)

	proc, err := core.NewProcessor(book, v, persistChan, projectionChan, core.Options{
		LRUCapacity: cfg.IdempotencyLRUCapacity,
		DBChecker:   persistence.NewPostgresIdempotencyChecker(db),
		Encode:      ingestion.Encode,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	// --- Recovery ---
	snapshots := persistence.NewSnapshotManager(db)
	report, err := persistence.Recover(ctx, snapshots, proc, ingestion.Decode, metrics, logger)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	stats, err := v.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read vault stats: %w", err)
	}
	if _, err := projection.RebuildProjections(ctx, db, vcfg.ID, &stats, logger); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	// --- Workers that drain after the front door closes ---
	drainCtx, drainCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer drainCancel()

	persistWorker := persistence.NewPersistenceWorker(db, persistChan, committed,
		cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, logger.With().Str("component", "persistence").Logger())
	publisher := ingestion.NewOutboundPublisher(js, committed, logger.With().Str("component", "publisher").Logger())
	projWorker := projection.NewProjectionWorker(db, projectionChan, vcfg.ID, metrics, logger.With().Str("component", "projection").Logger())

	var drain errgroup.Group
	drain.Go(func() error {
		defer close(committed)
		return persistWorker.Run(drainCtx)
	})
	drain.Go(func() error { return publisher.Run(drainCtx) })
	drain.Go(func() error { return projWorker.Run(drainCtx) })

	// --- Front door ---
	runner := core.NewRunner(proc, cfg.SubmitChanSize, cfg.SnapshotInterval, logger)
	units := fpmath.DecimalConfig{Decimals: vcfg.Decimals}

	// Deliveries queue on the runner inbox until it starts.
	subscriber := ingestion.NewNATSSubscriber(js, runner, logger.With().Str("component", "ingestion").Logger())
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects(cfg.StreamName, cfg.ConsumerTag)); err != nil {
		subscriber.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := runner.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	api := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, server.ServerDeps{
		Engine: runner,
		QueryService: query.NewQueryService(db, query.Config{
			VaultID:     vcfg.ID,
			AssetSymbol: ledger.Symbol(vcfg.Asset),
			ShareSymbol: ledger.Symbol(vcfg.Symbol),
			Units:       units,
		}),
		EventLog:      snapshots,
		DB:            db,
		VaultID:       vcfg.ID,
		Units:         units,
		HealthChecker: health,
		Metrics:       metrics,
		Logger:        logger,
	})
	g.Go(func() error { return api.StartGRPC(gctx) })
	g.Go(func() error { return api.StartHTTPGateway(gctx) })
	g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })

	health.SetReady(true)
	logger.Info().
		Int64("next_seq", report.NextSequence).
		Int64("replayed", report.Replayed).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("yieldvault ready")

	runErr := g.Wait()
	health.SetReady(false)
	subscriber.Stop()

	// The runner has stopped; the processor belongs to this goroutine now.
	snap := proc.EmitSnapshot()
	close(persistChan)
	close(projectionChan)

	timer := time.AfterFunc(shutdownTimeout, drainCancel)
	defer timer.Stop()
	if err := drain.Wait(); err != nil {
		logger.Error().Err(err).Msg("drain incomplete")
		runErr = errors.Join(runErr, err)
	}
	logger.Info().Int64("seq", snap.Sequence).Msg("shutdown complete")
	return runErr
}

func buildVault(ctx context.Context, cfg config.Config, nc *nats.Conn, logger zerolog.Logger) (*ledger.Book, *vault.Vault, error) {
	vcfg := cfg.Vault()

	book := ledger.NewBook()
	asset, err := book.Issue(ledger.Symbol(vcfg.Asset), vcfg.Decimals)
	if err != nil {
		return nil, nil, err
	}
	shares, err := book.Issue(ledger.Symbol(vcfg.Symbol), vcfg.Decimals)
	if err != nil {
		return nil, nil, err
	}

	v, err := vault.New(vcfg, shares, ledger.NewCustody(asset, vcfg.ID), logger.With().Str("component", "vault").Logger())
	if err != nil {
		return nil, nil, err
	}

	switch cfg.StrategyKind {
	case config.StrategySimulated:
		sim := strategy.NewSimulated(cfg.StrategyUUID(), asset, vcfg.ID, logger)
		sim.Attach(v)
		err = v.SetStrategy(ctx, sim)
	case config.StrategyRemote:
		remote := strategy.NewRemote(cfg.StrategyUUID(), asset, vcfg.ID, nc, cfg.StrategySubject, cfg.StrategyTimeout, logger)
		err = v.SetStrategy(ctx, remote)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("set strategy: %w", err)
	}
	return book, v, nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
