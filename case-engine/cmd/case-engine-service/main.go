package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/Venture/case-engine/internal/audit"
	"github.com/ILLUVRSE/Venture/case-engine/internal/config"
	"github.com/ILLUVRSE/Venture/case-engine/internal/ethics"
	"github.com/ILLUVRSE/Venture/case-engine/internal/httpserver"
	"github.com/ILLUVRSE/Venture/case-engine/internal/pipeline"
	"github.com/ILLUVRSE/Venture/case-engine/internal/review"
	"github.com/ILLUVRSE/Venture/case-engine/internal/signer"
	"github.com/ILLUVRSE/Venture/case-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatalw("case engine stopped", "error", err)
	}
}

func run(cfg config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	chain, closeSinks, err := newAuditChain(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	gate, err := newGate(cfg)
	if err != nil {
		return err
	}
	worker := pipeline.NewWorker(st, gate, pipeline.Config{
		JobTimeout: cfg.JobTimeout,
		Recorder:   chain,
		Logger:     logger.Named("pipeline"),
	})
	reviews := review.New(st, chain, logger.Named("review"))
	server := httpserver.New(cfg, worker, reviews, st, logger.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infow("case engine listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("graceful shutdown failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func newLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc := zap.NewDevelopmentConfig()
	if cfg.LogJSON {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "time"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar().Named("case-engine"), nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (store.Store, func(), error) {
	log := logger.Named("store")
	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("db open: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("db ping: %w", err)
		}
		return store.NewPGStore(db, log), func() { db.Close() }, nil
	case config.StoreFile:
		fs, err := store.NewFileStore(cfg.DataDir, log)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	default:
		log.Warnw("using in-memory case store; cases are lost on restart")
		return store.NewMemoryStore(log), func() {}, nil
	}
}

func newAuditChain(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) (*audit.Chain, func(), error) {
	log := logger.Named("audit")
	var (
		s   *signer.LocalSigner
		err error
	)
	if cfg.SignerKeyB64 != "" {
		s, err = signer.NewLocalSignerFromB64(cfg.SignerKeyB64, cfg.SignerID)
	} else {
		log.Warnw("no audit signing key configured; using an ephemeral key", "signerId", cfg.SignerID)
		s, err = signer.NewLocalSigner(cfg.SignerID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("signer init: %w", err)
	}

	var sinks []audit.Sink
	closeSinks := func() {}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := audit.NewKafkaSink(audit.KafkaSinkConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, k)
		closeSinks = func() {
			if err := k.Close(); err != nil {
				log.Warnw("close kafka sink", "error", err)
			}
		}
		log.Infow("audit events will be produced to kafka", "topic", cfg.KafkaTopic)
	}
	if cfg.S3Bucket != "" {
		a, err := audit.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			closeSinks()
			return nil, nil, fmt.Errorf("s3 archiver: %w", err)
		}
		sinks = append(sinks, a)
		log.Infow("audit events will be archived to s3", "bucket", cfg.S3Bucket, "prefix", cfg.S3Prefix)
	}

	chain, err := audit.NewChain(s, log, sinks...)
	if err != nil {
		closeSinks()
		return nil, nil, err
	}
	return chain, closeSinks, nil
}

func newGate(cfg config.Config) (*ethics.Gate, error) {
	var gc ethics.Config
	build := func(kind, url string) (*ethics.HTTPProvider, error) {
		return ethics.NewHTTPProvider(ethics.HTTPProviderConfig{
			Kind:      kind,
			URL:       url,
			Timeout:   cfg.ProviderTimeout,
			JWTSecret: cfg.ProviderSecret,
		})
	}
	if cfg.SanctionsURL != "" {
		p, err := build(ethics.KindSanctions, cfg.SanctionsURL)
		if err != nil {
			return nil, err
		}
		gc.Sanctions = p
	}
	if cfg.CorruptionURL != "" {
		p, err := build(ethics.KindCorruption, cfg.CorruptionURL)
		if err != nil {
			return nil, err
		}
		gc.Corruption = p
	}
	if cfg.IndustryRiskURL != "" {
		p, err := build(ethics.KindIndustry, cfg.IndustryRiskURL)
		if err != nil {
			return nil, err
		}
		gc.Industry = p
	}
	return ethics.NewGate(gc), nil
}
