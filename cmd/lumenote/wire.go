package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/k0luchiy/LumeNote/internal/config"
	"github.com/k0luchiy/LumeNote/internal/embeddings"
	"github.com/k0luchiy/LumeNote/internal/job"
	"github.com/k0luchiy/LumeNote/internal/logging"
	"github.com/k0luchiy/LumeNote/internal/partition"
	"github.com/k0luchiy/LumeNote/internal/prefs"
	"github.com/k0luchiy/LumeNote/internal/vectorstore"
)

// core holds the infrastructure both process roles share: logger, broker,
// queue, vector store, partitions and preferences.
type core struct {
	cfg        *config.Config
	logger     *zap.Logger
	nc         *nats.Conn
	queue      *job.Queue
	store      *vectorstore.ChromemStore
	partitions *partition.Service
	prefs      *prefs.FileStore
}

// buildCore wires the shared infrastructure from configuration.
func buildCore(ctx context.Context) (*core, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.Name("lumenote"),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATS.URL, err)
	}

	queue, err := job.NewQueue(nc, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	embedder, err := embeddings.NewGeminiProvider(ctx, embeddings.GeminiConfig{
		APIKey: cfg.Gemini.APIKey.Value(),
		Model:  cfg.Gemini.EmbeddingModel,
	})
	if err != nil {
		nc.Close()
		return nil, err
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:     cfg.VectorStore.Path,
		Compress: cfg.VectorStore.Compress,
	}, embedder, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	partitions, err := partition.NewService(store, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	prefStore, err := prefs.NewFileStore(cfg.Prefs.Path, logger)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &core{
		cfg:        cfg,
		logger:     logger,
		nc:         nc,
		queue:      queue,
		store:      store,
		partitions: partitions,
		prefs:      prefStore,
	}, nil
}

// close releases the shared infrastructure.
func (c *core) close() {
	if err := c.store.Close(); err != nil {
		c.logger.Warn("closing vector store failed", zap.Error(err))
	}
	c.nc.Close()
	_ = c.logger.Sync()
}

// policies converts configured job policies to the worker's form.
func policies(cfg config.WorkerConfig) map[job.Kind]job.Policy {
	out := make(map[job.Kind]job.Policy, len(cfg.Jobs))
	for name, p := range cfg.Jobs {
		out[job.Kind(name)] = job.Policy{
			MaxDeliver: p.MaxDeliver,
			AckWait:    p.AckWait.Duration(),
			Timeout:    p.Timeout.Duration(),
			Slots:      p.Slots,
		}
	}
	return out
}
