package discovery

import "github.com/jonwraymond/toolrouter/search"

// ScoreType indicates how a hit's score was computed.
type ScoreType string

const (
	// ScoreKeyword is a keyword score from the operation index.
	ScoreKeyword ScoreType = "keyword"
	// ScoreHybrid combines keyword and service similarity scores.
	ScoreHybrid ScoreType = "hybrid"
)

// Hit is an operation hit with the score it was ranked by.
type Hit struct {
	search.OperationHit
	ScoreType ScoreType `json:"score_type"`
}

// Hits is a slice of Hit with helper methods.
type Hits []Hit

// Names returns "service/operation" for each hit, in order.
func (h Hits) Names() []string {
	out := make([]string, len(h))
	for i, hit := range h {
		out[i] = hit.Service + "/" + hit.Name
	}
	return out
}

