package registry

import (
	"encoding/json"
	"fmt"
)

// ScoreType indicates how a result's score was produced.
type ScoreType string

const (
	// ScoreSimilarity is a vector similarity from a query.
	ScoreSimilarity ScoreType = "similarity"
	// ScoreSample marks results from a broad sample, which carry no score.
	ScoreSample ScoreType = "sample"
	// ScoreLookup marks results from a direct key lookup.
	ScoreLookup ScoreType = "lookup"
)

// Descriptor describes a registered service.
type Descriptor struct {
	// Identity is the unique, stable service name and record key.
	Identity string `json:"server_name"`
	// Description is the text that similarity search runs against.
	Description string `json:"server_description"`
	// Endpoint is the service URL. Its shape selects the transport.
	Endpoint string `json:"server_endpoint"`
	// Operations is the serialized operation list, passed through as is.
	Operations json.RawMessage `json:"tools,omitempty"`
}

// DecodeOperations unmarshals the operation list into a generic structure.
// An empty list decodes to nil.
func (d Descriptor) DecodeOperations() (any, error) {
	return decodeOperations(d.Operations)
}

func decodeOperations(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	return v, nil
}

// SearchResult is a descriptor produced by a query, with its score.
type SearchResult struct {
	Descriptor
	Score     float64   `json:"score"`
	ScoreType ScoreType `json:"-"`
}

// Results is a slice of SearchResult with helper methods.
type Results []SearchResult

// Identities returns the service identities in result order.
func (r Results) Identities() []string {
	ids := make([]string, len(r))
	for i, result := range r {
		ids[i] = result.Identity
	}
	return ids
}

// Top returns the first result, if any.
func (r Results) Top() (SearchResult, bool) {
	if len(r) == 0 {
		return SearchResult{}, false
	}
	return r[0], true
}

// Find returns the result whose identity equals id exactly.
func (r Results) Find(id string) (SearchResult, bool) {
	for _, result := range r {
		if result.Identity == id {
			return result, true
		}
	}
	return SearchResult{}, false
}

// FilterByMinScore returns results with score >= minScore.
func (r Results) FilterByMinScore(minScore float64) Results {
	var filtered Results
	for _, result := range r {
		if result.Score >= minScore {
			filtered = append(filtered, result)
		}
	}
	return filtered
}
