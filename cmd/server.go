package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/mri-check/internal/config"
	"github.com/example/mri-check/internal/repository"
	"github.com/example/mri-check/internal/store"
	"github.com/example/mri-check/internal/usecase"
)

// openSessionStore connects the configured backend. The returned close func releases it.
func openSessionStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (usecase.SessionStore, func(), error) {
	switch cfg.SessionStore {
	case config.StorePostgres:
		db, err := initDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewSessionRepository(db, cfg.SessionTTL, logger)
		if err := repo.AutoMigrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("auto migrate: %w", err)
		}
		purged, err := repo.PurgeExpired(ctx)
		if err != nil {
			logger.Warn("purge expired sessions failed", zap.Error(err))
		} else if purged > 0 {
			logger.Info("purged expired sessions", zap.Int64("count", purged))
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return repo, closeFn, nil
	default:
		redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		client, err := initRedis(redisCtx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisSessionStore(client, cfg.SessionTTL), func() { _ = client.Close() }, nil
	}
}

func initDatabase(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// serveHTTPServer runs server until it fails or the process receives SIGINT or SIGTERM.
func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	gs := &gracefulServer{server: server, shutdownTimeout: shutdownTimeout, logger: logger}
	return gs.run(signals)
}

// gracefulServer drains in-flight requests for up to shutdownTimeout once a stop signal arrives.
type gracefulServer struct {
	server          *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

func (g *gracefulServer) run(stop <-chan os.Signal) error {
	served := make(chan error, 1)
	go func() { served <- g.serve() }()

	select {
	case err := <-served:
		return err
	case sig, ok := <-stop:
		if ok {
			if err := g.shutdown(sig); err != nil {
				return err
			}
		}
		return <-served
	}
}

func (g *gracefulServer) serve() error {
	var err error
	if g.listener != nil {
		err = g.server.Serve(g.listener)
	} else {
		err = g.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *gracefulServer) shutdown(sig os.Signal) error {
	g.logger.Info("draining connections",
		zap.String("signal", sig.String()),
		zap.Duration("timeout", g.shutdownTimeout),
	)
	ctx, cancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
