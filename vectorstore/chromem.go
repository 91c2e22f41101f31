package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemConfig configures the chromem-go adapter.
type ChromemConfig struct {
	// PersistPath stores the database on disk when set. Empty means the
	// database lives in memory only.
	PersistPath string `yaml:"persist_path"`
	// Compress gzips persisted documents.
	Compress bool `yaml:"compress"`
}

// Chromem is a Store backed by an embedded chromem-go database.
type Chromem struct {
	db *chromem.DB

	mu   sync.Mutex
	dims map[string]int
}

// NewChromem opens a chromem-go database.
func NewChromem(cfg ChromemConfig) (*Chromem, error) {
	if cfg.PersistPath == "" {
		return &Chromem{db: chromem.NewDB(), dims: make(map[string]int)}, nil
	}
	db, err := chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem database at %s: %w", cfg.PersistPath, err)
	}
	return &Chromem{db: db, dims: make(map[string]int)}, nil
}

// Vectors are always computed by the registry's embedder, so chromem must
// never embed on its own.
func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectorstore: chromem collections require precomputed embeddings")
}

// EnsureCollection returns the named collection, creating it if absent. If
// creation fails the collection is looked up once more before giving up. An
// existing collection whose vectors have a different length is rejected with
// ErrDimensionMismatch.
func (s *Chromem) EnsureCollection(ctx context.Context, name string, dimension int) (Collection, error) {
	if name == "" || dimension <= 0 {
		return nil, fmt.Errorf("%w: name %q dimension %d", ErrInvalidArgument, name, dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.db.GetCollection(name, precomputedOnly)
	if c == nil {
		var err error
		c, err = s.db.CreateCollection(name, map[string]string{"dimension": strconv.Itoa(dimension)}, precomputedOnly)
		if err != nil {
			c = s.db.GetCollection(name, precomputedOnly)
			if c == nil {
				return nil, fmt.Errorf("%w: create %q: %v", ErrCollection, name, err)
			}
			if err := s.checkDimension(ctx, name, c, dimension); err != nil {
				return nil, err
			}
		}
	} else if err := s.checkDimension(ctx, name, c, dimension); err != nil {
		return nil, err
	}

	s.dims[name] = dimension
	return &chromemCollection{c: c, dimension: dimension}, nil
}

// checkDimension compares want against the dimension recorded for name in
// this process, or else against the length of a stored document. chromem
// keeps collection metadata private, so a persisted collection is checked by
// querying its nearest document with a vector of length want. Empty
// collections opened from disk are accepted.
func (s *Chromem) checkDimension(ctx context.Context, name string, c *chromem.Collection, want int) error {
	if have, ok := s.dims[name]; ok {
		if have != want {
			return fmt.Errorf("%w: collection %q has dimension %d, want %d", ErrDimensionMismatch, name, have, want)
		}
		return nil
	}
	if c.Count() == 0 {
		return nil
	}

	sample := make([]float32, want)
	for i := range sample {
		sample[i] = 1
	}
	res, err := c.QueryEmbedding(ctx, sample, 1, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: collection %q does not hold %d-dimensional vectors: %v", ErrDimensionMismatch, name, want, err)
	}
	if len(res) > 0 && len(res[0].Embedding) != want {
		return fmt.Errorf("%w: collection %q has dimension %d, want %d", ErrDimensionMismatch, name, len(res[0].Embedding), want)
	}
	return nil
}

// Close is a no-op. Persistent databases write through on every upsert.
func (s *Chromem) Close() error { return nil }

type chromemCollection struct {
	c         *chromem.Collection
	dimension int
}

func (c *chromemCollection) Name() string   { return c.c.Name }
func (c *chromemCollection) Dimension() int { return c.dimension }

func (c *chromemCollection) Upsert(ctx context.Context, id string, vector []float32, fields map[string]string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	if err := checkVector(vector, c.dimension); err != nil {
		return err
	}
	return c.c.AddDocument(ctx, chromem.Document{
		ID:        id,
		Metadata:  fields,
		Embedding: vector,
	})
}

func (c *chromemCollection) Query(ctx context.Context, vector []float32, topK int, fields []string) ([]Match, error) {
	if err := checkQuery(vector, topK, c.dimension); err != nil {
		return nil, err
	}
	// chromem rejects nResults above the document count.
	if n := c.c.Count(); topK > n {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := c.c.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:     r.ID,
			Fields: project(r.Metadata, fields),
			Score:  r.Similarity,
		})
	}
	return matches, nil
}

func (c *chromemCollection) Get(ctx context.Context, id string, fields []string) (Match, bool, error) {
	if id == "" {
		return Match{}, false, fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	doc, err := c.c.GetByID(ctx, id)
	if err != nil {
		// GetByID only fails for unknown ids once the id is non-empty.
		return Match{}, false, nil
	}
	return Match{ID: doc.ID, Fields: project(doc.Metadata, fields), Score: 1}, true, nil
}
