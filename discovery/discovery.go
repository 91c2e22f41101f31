package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/search"
)

// Error values for discovery operations.
var (
	ErrInvalidConfig = errors.New("invalid discovery config")
	ErrInvalidLimit  = errors.New("limit must be positive")
)

// Defaults applied by New.
const (
	DefaultAlpha        = 0.5
	DefaultCandidates   = 50
	DefaultServiceProbe = 20
)

// ServiceSearcher is the registry surface used for service similarity.
type ServiceSearcher interface {
	SearchBySimilarity(ctx context.Context, query string, topK int) (registry.Results, error)
}

// OperationSearcher is the keyword index surface.
type OperationSearcher interface {
	Search(query string, limit int) ([]search.OperationHit, error)
}

// Options configures a Discovery.
type Options struct {
	// Operations is the keyword index. Required.
	Operations OperationSearcher
	// Services enables hybrid scoring. Optional.
	Services ServiceSearcher

	// Alpha is the keyword weight in [0, 1]; similarity weighs 1-Alpha.
	// Nil means DefaultAlpha.
	Alpha *float64
	// Candidates is how many keyword hits are re-ranked (default: 50).
	Candidates int
	// ServiceProbe is how many services are scored for similarity
	// (default: 20).
	ServiceProbe int
	Logger       *slog.Logger
}

// Discovery ranks operations across services.
type Discovery struct {
	operations   OperationSearcher
	services     ServiceSearcher
	alpha        float64
	candidates   int
	serviceProbe int
	logger       *slog.Logger
}

// New creates a Discovery.
func New(opts Options) (*Discovery, error) {
	if opts.Operations == nil {
		return nil, fmt.Errorf("%w: operation searcher is required", ErrInvalidConfig)
	}
	alpha := DefaultAlpha
	if opts.Alpha != nil {
		alpha = *opts.Alpha
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: alpha %v is outside [0, 1]", ErrInvalidConfig, alpha)
	}
	d := &Discovery{
		operations:   opts.Operations,
		services:     opts.Services,
		alpha:        alpha,
		candidates:   opts.Candidates,
		serviceProbe: opts.ServiceProbe,
		logger:       opts.Logger,
	}
	if d.candidates <= 0 {
		d.candidates = DefaultCandidates
	}
	if d.serviceProbe <= 0 {
		d.serviceProbe = DefaultServiceProbe
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// Search returns up to limit operations for query.
func (d *Discovery) Search(ctx context.Context, query string, limit int) (Hits, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidLimit, limit)
	}

	// An empty query lists operations; there is nothing to be similar to.
	if strings.TrimSpace(query) == "" || d.services == nil || d.alpha == 1 {
		hits, err := d.operations.Search(query, limit)
		if err != nil {
			return nil, err
		}
		return withScoreType(hits, ScoreKeyword), nil
	}

	candidates := max(d.candidates, limit)
	hits, err := d.operations.Search(query, candidates)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return Hits{}, nil
	}

	services, err := d.services.SearchBySimilarity(ctx, query, d.serviceProbe)
	if err != nil {
		d.logger.Warn("service similarity unavailable, ranking by keywords", "error", err)
		return truncate(withScoreType(hits, ScoreKeyword), limit), nil
	}
	similarity := make(map[string]float64, len(services))
	for _, s := range services {
		similarity[s.Identity] = clamp01(s.Score)
	}

	best := 0.0
	for _, h := range hits {
		best = max(best, h.Score)
	}

	out := make(Hits, len(hits))
	for i, h := range hits {
		keyword := 0.0
		if best > 0 {
			keyword = h.Score / best
		}
		h.Score = d.alpha*keyword + (1-d.alpha)*similarity[h.Service]
		out[i] = Hit{OperationHit: h, ScoreType: ScoreHybrid}
	}
	sortHits(out)
	return truncate(out, limit), nil
}

func sortHits(hits Hits) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Service != hits[j].Service {
			return hits[i].Service < hits[j].Service
		}
		return hits[i].Name < hits[j].Name
	})
}

func withScoreType(hits []search.OperationHit, t ScoreType) Hits {
	out := make(Hits, len(hits))
	for i, h := range hits {
		out[i] = Hit{OperationHit: h, ScoreType: t}
	}
	return out
}

func truncate(hits Hits, limit int) Hits {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// clamp01 maps cosine similarity into [0, 1]; negative similarity counts
// as none.
func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
