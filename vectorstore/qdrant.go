package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// recordIDKey holds the caller's record id in each point's payload. Qdrant
// only accepts integer or UUID point ids.
const recordIDKey = "_record_id"

// QdrantConfig configures the Qdrant adapter.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// Qdrant is a Store backed by a Qdrant server.
type Qdrant struct {
	client *qdrant.Client
}

// NewQdrant creates a Qdrant client. The connection is established lazily.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Qdrant{client: client}, nil
}

// EnsureCollection returns the named collection, creating it with cosine
// distance if absent. A failed create is followed by one more existence
// check so a concurrent creator does not cause an error.
func (s *Qdrant) EnsureCollection(ctx context.Context, name string, dimension int) (Collection, error) {
	if name == "" || dimension <= 0 {
		return nil, fmt.Errorf("%w: name %q dimension %d", ErrInvalidArgument, name, dimension)
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil || !exists {
		createErr := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if createErr != nil {
			exists, err = s.client.CollectionExists(ctx, name)
			if err != nil || !exists {
				return nil, fmt.Errorf("%w: create %q: %v", ErrCollection, name, createErr)
			}
		}
	}

	if err := s.checkDimension(ctx, name, dimension); err != nil {
		return nil, err
	}
	return &qdrantCollection{client: s.client, name: name, dimension: dimension}, nil
}

func (s *Qdrant) checkDimension(ctx context.Context, name string, dimension int) error {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: describe %q: %v", ErrCollection, name, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dimension) {
		return fmt.Errorf("%w: collection %q has dimension %d, want %d", ErrDimensionMismatch, name, size, dimension)
	}
	return nil
}

// Close closes the gRPC connections.
func (s *Qdrant) Close() error {
	return s.client.Close()
}

type qdrantCollection struct {
	client    *qdrant.Client
	name      string
	dimension int
}

func (c *qdrantCollection) Name() string   { return c.name }
func (c *qdrantCollection) Dimension() int { return c.dimension }

// pointID derives a stable UUIDv5 from a record id.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String())
}

func toPayload(id string, fields map[string]string) map[string]*qdrant.Value {
	payload := make(map[string]*qdrant.Value, len(fields)+1)
	for k, v := range fields {
		payload[k] = qdrant.NewValueString(v)
	}
	payload[recordIDKey] = qdrant.NewValueString(id)
	return payload
}

func fromPayload(payload map[string]*qdrant.Value, fields []string) (string, map[string]string) {
	all := make(map[string]string, len(payload))
	for k, v := range payload {
		if k == recordIDKey {
			continue
		}
		all[k] = v.GetStringValue()
	}
	return payload[recordIDKey].GetStringValue(), project(all, fields)
}

func payloadSelector(fields []string) *qdrant.WithPayloadSelector {
	if fields == nil {
		return qdrant.NewWithPayload(true)
	}
	include := append([]string{recordIDKey}, fields...)
	return qdrant.NewWithPayloadInclude(include...)
}

func (c *qdrantCollection) Upsert(ctx context.Context, id string, vector []float32, fields map[string]string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	if err := checkVector(vector, c.dimension); err != nil {
		return err
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: qdrant.NewVectorsDense(vector),
			Payload: toPayload(id, fields),
		}},
	})
	return err
}

func (c *qdrantCollection) Query(ctx context.Context, vector []float32, topK int, fields []string) ([]Match, error) {
	if err := checkQuery(vector, topK, c.dimension); err != nil {
		return nil, err
	}
	points, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    payloadSelector(fields),
	})
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		id, projected := fromPayload(p.GetPayload(), fields)
		matches = append(matches, Match{ID: id, Fields: projected, Score: p.GetScore()})
	}
	return matches, nil
}

func (c *qdrantCollection) Get(ctx context.Context, id string, fields []string) (Match, bool, error) {
	if id == "" {
		return Match{}, false, fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.name,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    payloadSelector(fields),
	})
	if err != nil {
		return Match{}, false, err
	}
	for _, p := range points {
		got, projected := fromPayload(p.GetPayload(), fields)
		if got == id {
			return Match{ID: got, Fields: projected, Score: 1}, true, nil
		}
	}
	return Match{}, false, nil
}

func (c *qdrantCollection) Sample(ctx context.Context, limit int, fields []string) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidArgument, limit)
	}
	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.name,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    payloadSelector(fields),
	})
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		id, projected := fromPayload(p.GetPayload(), fields)
		matches = append(matches, Match{ID: id, Fields: projected})
	}
	return matches, nil
}
