package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var bucketCollections = []byte("_collections")

// BoltConfig configures the bbolt adapter.
type BoltConfig struct {
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// Bolt is a Store persisted in a single bbolt file. Each collection is a
// bucket; vectors are cached in memory and ranked by brute-force cosine
// similarity.
type Bolt struct {
	db *bbolt.DB

	mu          sync.Mutex
	collections map[string]*boltCollection
}

type storedVector struct {
	Vector []float32         `json:"v"`
	Fields map[string]string `json:"m,omitempty"`
}

// NewBolt opens or creates the database file at cfg.Path.
func NewBolt(cfg BoltConfig) (*Bolt, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: bolt path is required", ErrInvalidArgument)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt database %s: %w", cfg.Path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize bolt database: %w", err)
	}
	return &Bolt{db: db, collections: make(map[string]*boltCollection)}, nil
}

// EnsureCollection returns the named collection, creating its bucket if
// absent. The dimension is recorded on creation and checked on reopen.
func (s *Bolt) EnsureCollection(_ context.Context, name string, dimension int) (Collection, error) {
	if name == "" || name == string(bucketCollections) || dimension <= 0 {
		return nil, fmt.Errorf("%w: name %q dimension %d", ErrInvalidArgument, name, dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return nil, fmt.Errorf("%w: collection %q has dimension %d, want %d",
				ErrDimensionMismatch, name, c.dimension, dimension)
		}
		return c, nil
	}

	stored := dimension
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketCollections)
		if raw := meta.Get([]byte(name)); raw != nil {
			n, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("corrupt dimension for %q: %w", name, err)
			}
			stored = n
		} else if err := meta.Put([]byte(name), []byte(strconv.Itoa(dimension))); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create %q: %v", ErrCollection, name, err)
	}
	if stored != dimension {
		return nil, fmt.Errorf("%w: collection %q has dimension %d, want %d",
			ErrDimensionMismatch, name, stored, dimension)
	}

	c := &boltCollection{db: s.db, name: name, dimension: dimension, entries: make(map[string]entry)}
	if err := c.load(); err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", ErrCollection, name, err)
	}
	s.collections[name] = c
	return c, nil
}

// Close closes the database file.
func (s *Bolt) Close() error {
	return s.db.Close()
}

type boltCollection struct {
	db        *bbolt.DB
	name      string
	dimension int

	mu      sync.RWMutex
	entries map[string]entry
}

func (c *boltCollection) Name() string   { return c.name }
func (c *boltCollection) Dimension() int { return c.dimension }

func (c *boltCollection) load() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var sv storedVector
			if err := json.Unmarshal(v, &sv); err != nil {
				return nil // skip corrupt records
			}
			c.entries[string(k)] = entry{vector: sv.Vector, fields: sv.Fields}
			return nil
		})
	})
}

func (c *boltCollection) Upsert(_ context.Context, id string, vector []float32, fields map[string]string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	if err := checkVector(vector, c.dimension); err != nil {
		return err
	}
	e := entry{vector: slices.Clone(vector), fields: project(fields, nil)}
	data, err := json.Marshal(storedVector{Vector: e.vector, Fields: e.fields})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(c.name))
		if b == nil {
			return fmt.Errorf("bucket %q not found", c.name)
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return err
	}
	c.entries[id] = e
	return nil
}

func (c *boltCollection) Query(_ context.Context, vector []float32, topK int, fields []string) ([]Match, error) {
	if err := checkQuery(vector, topK, c.dimension); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return rankByCosine(c.entries, vector, topK, fields), nil
}

func (c *boltCollection) Get(_ context.Context, id string, fields []string) (Match, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Match{}, false, nil
	}
	return Match{ID: id, Fields: project(e.fields, fields), Score: 1}, true, nil
}

// Sample returns records in key order.
func (c *boltCollection) Sample(_ context.Context, limit int, fields []string) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit < len(ids) {
		ids = ids[:limit]
	}
	matches := make([]Match, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, Match{ID: id, Fields: project(c.entries[id].fields, fields)})
	}
	return matches, nil
}
