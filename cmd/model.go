package cmd

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/mri-check/internal/artifact"
	"github.com/example/mri-check/internal/classifier"
	"github.com/example/mri-check/internal/config"
	"github.com/example/mri-check/internal/grpcclient"
	"github.com/example/mri-check/internal/modelclient"
)

// modelBackend owns the connection opened by the lazy model initialiser.
type modelBackend struct {
	cfg     *config.Config
	fetcher *artifact.Fetcher
	logger  *zap.Logger

	mu   sync.Mutex
	conn *grpc.ClientConn
}

func newModelBackend(cfg *config.Config, logger *zap.Logger) *modelBackend {
	return &modelBackend{
		cfg:     cfg,
		fetcher: newArtifactFetcher(cfg, logger),
		logger:  logger,
	}
}

func newArtifactFetcher(cfg *config.Config, logger *zap.Logger) *artifact.Fetcher {
	return artifact.NewFetcher(cfg.ArtifactURL(), cfg.ModelPath, nil, logger)
}

// lazy returns a classifier.Lazy that ensures the artifact and connects the backend on first use.
func (b *modelBackend) lazy() *classifier.Lazy {
	return classifier.NewLazy(b.connect)
}

func (b *modelBackend) connect(ctx context.Context) (classifier.Model, error) {
	if err := b.fetcher.Ensure(ctx); err != nil {
		return nil, err
	}

	switch b.cfg.ClassifierBackend {
	case config.BackendGRPC:
		model, conn, err := grpcclient.DialClassifier(ctx, b.cfg.ClassifierAddr, b.cfg.ClassifierGRPCMethod, b.logger)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()
		return model, nil
	case config.BackendHTTP:
		client := modelclient.New(b.cfg.ClassifierAddr, b.cfg.ClassifierModelName, b.cfg.ClassifierTimeout, b.logger)
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown classifier backend %q", b.cfg.ClassifierBackend)
	}
}

func (b *modelBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
