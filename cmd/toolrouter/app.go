package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonwraymond/toolrouter/config"
	"github.com/jonwraymond/toolrouter/discovery"
	"github.com/jonwraymond/toolrouter/dispatch"
	"github.com/jonwraymond/toolrouter/embedding"
	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/router"
	"github.com/jonwraymond/toolrouter/search"
	"github.com/jonwraymond/toolrouter/transport"
	"github.com/jonwraymond/toolrouter/vectorstore"
)

// reindexLimit caps how many stored services are replayed into an
// in-memory operation index at startup.
const reindexLimit = 10000

// app holds the wired components for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store      vectorstore.Store
	registry   *registry.Registry
	operations *search.OperationIndex
	dispatcher *dispatch.Dispatcher
	metrics    *prometheus.Registry
}

func newEmbedder(cfg config.EmbeddingConfig) embedding.Provider {
	if cfg.Provider == config.ProviderHash {
		return embedding.NewHash(cfg.Dimension)
	}
	return embedding.NewOpenAI(embedding.OpenAIConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		Timeout:   cfg.Timeout,
	})
}

// newApp wires the embedder, vector store, registry, operation index,
// transports and dispatcher that cfg describes.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	embedder := embedding.WithRetry(newEmbedder(cfg.Embedding), cfg.Retry, logger.With("component", "embedding"))

	store, err := vectorstore.New(cfg.Store.Config)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.store = vectorstore.WithRetry(store, cfg.Retry, logger.With("component", "vectorstore"))

	var indexer registry.Indexer
	if cfg.Search.Enabled {
		a.operations, err = search.NewOperationIndex(search.OperationIndexConfig{
			Path:   cfg.Search.IndexPath,
			Logger: logger.With("component", "search"),
		})
		if err != nil {
			return nil, err
		}
		indexer = a.operations
	}

	a.registry, err = registry.New(registry.Options{
		Embedder:    embedder,
		Store:       a.store,
		Collection:  cfg.Store.Collection,
		Dimension:   cfg.Embedding.Dimension,
		NarrowProbe: cfg.Registry.NarrowProbe,
		BroadProbe:  cfg.Registry.BroadProbe,
		Indexer:     indexer,
		Logger:      logger.With("component", "registry"),
	})
	if err != nil {
		return nil, err
	}
	if err := a.registry.Open(ctx); err != nil {
		return nil, err
	}

	var streaming transport.Transport
	if cfg.Dispatch.StreamingEnabled {
		streaming = transport.NewSession(transport.SessionOptions{
			Headers:       cfg.Dispatch.Headers,
			ClientName:    cfg.Server.Name,
			ClientVersion: cfg.Server.Version,
			Retry:         cfg.Retry,
			Logger:        logger.With("component", "transport", "transport", string(transport.KindStreaming)),
		})
	}
	a.dispatcher, err = dispatch.New(dispatch.Options{
		Resolver: a.registry,
		RequestResponse: transport.NewHTTP(transport.HTTPOptions{
			Timeout: cfg.Dispatch.HTTPTimeout,
			Headers: cfg.Dispatch.Headers,
			Retry:   cfg.Retry,
			Logger:  logger.With("component", "transport", "transport", string(transport.KindRequestResponse)),
		}),
		Streaming:     streaming,
		StreamMarkers: cfg.Dispatch.StreamMarkers,
		CallTimeout:   cfg.Dispatch.CallTimeout,
		Metrics:       dispatch.NewMetrics(a.metrics),
		Logger:        logger.With("component", "dispatch"),
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("dispatcher ready", "streaming", a.dispatcher.StreamingAvailable(), "markers", cfg.Dispatch.StreamMarkers)
	return a, nil
}

// reindex replays stored services into an empty operation index.
func (a *app) reindex(ctx context.Context) error {
	if a.operations == nil {
		return nil
	}
	if n, err := a.operations.Len(); err != nil || n > 0 {
		return err
	}
	results, err := a.registry.SearchBySimilarity(ctx, "", reindexLimit)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := a.operations.IndexService(r.Identity, r.Operations); err != nil {
			a.logger.Warn("reindex failed", "identity", r.Identity, "error", err)
		}
	}
	a.logger.Debug("operation index rebuilt", "services", len(results))
	return nil
}

func (a *app) router() (*router.Router, error) {
	var ops router.Operations
	if a.operations != nil {
		alpha := a.cfg.Search.HybridAlpha
		ranker, err := discovery.New(discovery.Options{
			Operations: a.operations,
			Services:   a.registry,
			Alpha:      &alpha,
			Logger:     a.logger.With("component", "discovery"),
		})
		if err != nil {
			return nil, err
		}
		ops = ranker
	}
	return router.New(router.Options{
		Name:       a.cfg.Server.Name,
		Version:    a.cfg.Server.Version,
		Services:   a.registry,
		Dispatcher: a.dispatcher,
		Operations: ops,
		Gatherer:   a.metrics,
		Logger:     a.logger.With("component", "router"),
	})
}

// Close releases the store and the operation index.
func (a *app) Close() error {
	var errs []error
	if a.operations != nil {
		errs = append(errs, a.operations.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
