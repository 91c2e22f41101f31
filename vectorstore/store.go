package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCollection is returned when a collection cannot be created or
	// fetched.
	ErrCollection = errors.New("collection unavailable")
	// ErrNotFound is returned by lookups for ids that do not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidArgument is returned for malformed ids, limits or names.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store opens collections.
type Store interface {
	// EnsureCollection returns the named collection, creating it with the
	// given dimension if absent. It is idempotent.
	EnsureCollection(ctx context.Context, name string, dimension int) (Collection, error)
	// Close releases the store's resources.
	Close() error
}

// Collection is a set of vectors sharing one dimension.
type Collection interface {
	Name() string
	Dimension() int
	// Upsert writes or overwrites the record with the given id.
	Upsert(ctx context.Context, id string, vector []float32, fields map[string]string) error
	// Query returns up to topK records ordered by descending score. A nil
	// fields slice projects every field.
	Query(ctx context.Context, vector []float32, topK int, fields []string) ([]Match, error)
}

// Getter is implemented by collections that support direct key lookup.
type Getter interface {
	Get(ctx context.Context, id string, fields []string) (Match, bool, error)
}

// Sampler is implemented by collections that can list records without a
// query vector.
type Sampler interface {
	Sample(ctx context.Context, limit int, fields []string) ([]Match, error)
}

// Match is one query result.
type Match struct {
	ID     string
	Fields map[string]string
	Score  float32
}

func checkVector(vec []float32, dimension int) error {
	if len(vec) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dimension)
	}
	return nil
}

func checkQuery(vec []float32, topK, dimension int) error {
	if topK <= 0 {
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, topK)
	}
	return checkVector(vec, dimension)
}

// project copies the requested fields. A nil want copies everything.
func project(fields map[string]string, want []string) map[string]string {
	if want == nil {
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	out := make(map[string]string, len(want))
	for _, k := range want {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

type entry struct {
	vector []float32
	fields map[string]string
}

// rankByCosine is the brute-force ranking shared by the local stores.
// Ties are broken by id so results are deterministic.
func rankByCosine(entries map[string]entry, query []float32, topK int, fields []string) []Match {
	matches := make([]Match, 0, len(entries))
	for id, e := range entries {
		matches = append(matches, Match{ID: id, Score: cosine(query, e.vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK < len(matches) {
		matches = matches[:topK]
	}
	for i := range matches {
		matches[i].Fields = project(entries[matches[i].ID].fields, fields)
	}
	return matches
}
