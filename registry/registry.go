package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/toolrouter/embedding"
	"github.com/jonwraymond/toolrouter/vectorstore"
)

// Record field names.
const (
	FieldName        = "server_name"
	FieldDescription = "server_description"
	FieldEndpoint    = "server_endpoint"
	FieldOperations  = "tools"
)

// Defaults applied by New.
const (
	DefaultCollection  = "mcp_services_collection"
	DefaultNarrowProbe = 20
	DefaultBroadProbe  = 100
)

var projectedFields = []string{FieldName, FieldDescription, FieldEndpoint, FieldOperations}

// Indexer receives the operation list of every successfully registered
// service.
type Indexer interface {
	IndexService(identity string, operations json.RawMessage) error
}

// Options configures a Registry.
type Options struct {
	Embedder embedding.Provider
	Store    vectorstore.Store
	// Collection name (default: mcp_services_collection).
	Collection string
	// Dimension of stored vectors (default: Embedder.Dimension()).
	Dimension int
	// NarrowProbe and BroadProbe size the similarity probes used by
	// ResolveEndpoint on stores without key lookup (defaults: 20, 100).
	NarrowProbe int
	BroadProbe  int
	// Indexer is notified after each successful Register. Optional.
	Indexer Indexer
	Logger  *slog.Logger
}

// Registry is a similarity-searchable service registry. It is safe for
// concurrent use.
type Registry struct {
	embedder    embedding.Provider
	store       vectorstore.Store
	name        string
	dimension   int
	narrowProbe int
	broadProbe  int
	indexer     Indexer
	logger      *slog.Logger

	mu   sync.Mutex
	coll vectorstore.Collection
	// opening shares one EnsureCollection round trip between concurrent
	// callers on a cold registry. r.mu is never held across it.
	opening singleflight.Group
}

// New creates a Registry. The collection is not touched until Open or the
// first operation.
func New(opts Options) (*Registry, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidRequest)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrInvalidRequest)
	}

	r := &Registry{
		embedder:    opts.Embedder,
		store:       opts.Store,
		name:        opts.Collection,
		dimension:   opts.Dimension,
		narrowProbe: opts.NarrowProbe,
		broadProbe:  opts.BroadProbe,
		indexer:     opts.Indexer,
		logger:      opts.Logger,
	}
	if r.name == "" {
		r.name = DefaultCollection
	}
	if r.dimension <= 0 {
		r.dimension = opts.Embedder.Dimension()
	}
	if r.dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidRequest)
	}
	if r.narrowProbe <= 0 {
		r.narrowProbe = DefaultNarrowProbe
	}
	if r.broadProbe <= 0 {
		r.broadProbe = DefaultBroadProbe
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("collection", r.name)
	return r, nil
}

// Open ensures the backing collection exists.
func (r *Registry) Open(ctx context.Context) error {
	_, err := r.collection(ctx)
	return err
}

// Dimension returns the vector dimension of the collection.
func (r *Registry) Dimension() int { return r.dimension }

func (r *Registry) collection(ctx context.Context) (vectorstore.Collection, error) {
	if coll := r.cached(); coll != nil {
		return coll, nil
	}
	v, err, _ := r.opening.Do(r.name, func() (any, error) {
		if coll := r.cached(); coll != nil {
			return coll, nil
		}
		coll, err := r.store.EnsureCollection(ctx, r.name, r.dimension)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreInit, err)
		}
		r.mu.Lock()
		r.coll = coll
		r.mu.Unlock()
		r.logger.Debug("collection ready", "dimension", r.dimension)
		return coll, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(vectorstore.Collection), nil
}

func (r *Registry) cached() vectorstore.Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coll
}

// Register embeds d.Description and upserts d under d.Identity, replacing
// any previous descriptor with that identity.
func (r *Registry) Register(ctx context.Context, d Descriptor) error {
	if strings.TrimSpace(d.Identity) == "" {
		return fmt.Errorf("%w: identity is required", ErrInvalidRequest)
	}
	if len(d.Operations) > 0 && !json.Valid(d.Operations) {
		return fmt.Errorf("%w: operations of %s are not valid JSON", ErrInvalidRequest, d.Identity)
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}

	vec, err := r.embedder.Embed(ctx, d.Description)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	ops := d.Operations
	if len(ops) == 0 {
		ops = json.RawMessage("[]")
	}
	fields := map[string]string{
		FieldName:        d.Identity,
		FieldDescription: d.Description,
		FieldEndpoint:    d.Endpoint,
		FieldOperations:  string(ops),
	}
	if err := coll.Upsert(ctx, d.Identity, vec, fields); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}
	r.logger.Info("service registered", "identity", d.Identity, "endpoint", d.Endpoint)

	if r.indexer != nil {
		if err := r.indexer.IndexService(d.Identity, ops); err != nil {
			r.logger.Warn("operation indexing failed", "identity", d.Identity, "error", err)
		}
	}
	return nil
}

// SearchBySimilarity returns up to topK services ordered by descending
// similarity to query. An empty query returns a broad sample in the store's
// default order.
func (r *Registry) SearchBySimilarity(ctx context.Context, query string, topK int) (Results, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidRequest, topK)
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(query) == "" {
		return r.sample(ctx, coll, topK)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	matches, err := coll.Query(ctx, vec, topK, projectedFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}
	return toResults(matches, ScoreSimilarity), nil
}

// sample serves empty queries without calling the embedder: through the
// store's Sampler when it has one, otherwise with a uniform probe vector.
func (r *Registry) sample(ctx context.Context, coll vectorstore.Collection, limit int) (Results, error) {
	if sampler, ok := coll.(vectorstore.Sampler); ok {
		matches, err := sampler.Sample(ctx, limit, projectedFields)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
		}
		return toResults(matches, ScoreSample), nil
	}
	matches, err := coll.Query(ctx, uniformVector(r.dimension), limit, projectedFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}
	return toResults(matches, ScoreSample), nil
}

func uniformVector(dimension int) []float32 {
	v := make([]float32, dimension)
	c := float32(1 / math.Sqrt(float64(dimension)))
	for i := range v {
		v[i] = c
	}
	return v
}

// ResolveEndpoint returns the endpoint registered under identity.
func (r *Registry) ResolveEndpoint(ctx context.Context, identity string) (string, error) {
	res, err := r.Resolve(ctx, identity)
	if err != nil {
		return "", err
	}
	return res.Endpoint, nil
}

// Resolve returns the full descriptor registered under identity. Stores with
// key lookup answer directly; otherwise a narrow probe on the identity text
// is followed by a broad sample.
func (r *Registry) Resolve(ctx context.Context, identity string) (SearchResult, error) {
	if strings.TrimSpace(identity) == "" {
		return SearchResult{}, fmt.Errorf("%w: identity is required", ErrInvalidRequest)
	}
	coll, err := r.collection(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	if getter, ok := coll.(vectorstore.Getter); ok {
		m, found, err := getter.Get(ctx, identity, projectedFields)
		if err != nil {
			return SearchResult{}, fmt.Errorf("%w: %v", ErrStoreQuery, err)
		}
		if !found {
			return SearchResult{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
		}
		return toResult(m, ScoreLookup), nil
	}

	var probeErr error
	for _, probe := range []struct {
		query string
		topK  int
	}{
		{identity, r.narrowProbe},
		{"", r.broadProbe},
	} {
		results, err := r.SearchBySimilarity(ctx, probe.query, probe.topK)
		if err != nil {
			r.logger.Warn("resolution probe failed", "identity", identity, "top_k", probe.topK, "error", err)
			probeErr = err
			continue
		}
		if res, ok := results.Find(identity); ok {
			return res, nil
		}
	}

	if probeErr != nil {
		return SearchResult{}, fmt.Errorf("%w: %s (last probe error: %w)", ErrNotFound, identity, probeErr)
	}
	return SearchResult{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
}

func toResults(matches []vectorstore.Match, scoreType ScoreType) Results {
	out := make(Results, 0, len(matches))
	for _, m := range matches {
		out = append(out, toResult(m, scoreType))
	}
	return out
}

func toResult(m vectorstore.Match, scoreType ScoreType) SearchResult {
	id := m.ID
	if id == "" {
		id = m.Fields[FieldName]
	}
	var ops json.RawMessage
	if raw := m.Fields[FieldOperations]; raw != "" {
		ops = json.RawMessage(raw)
	}
	return SearchResult{
		Descriptor: Descriptor{
			Identity:    id,
			Description: m.Fields[FieldDescription],
			Endpoint:    m.Fields[FieldEndpoint],
			Operations:  ops,
		},
		Score:     float64(m.Score),
		ScoreType: scoreType,
	}
}

// IsNotFound reports whether err means the identity is not registered.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
