// Package search provides a BM25 keyword index over the operations of
// registered services.
//
// Similarity search in the registry ranks whole services by their
// description. [OperationIndex] complements it one level down: every
// operation a service declares becomes its own document, so callers can ask
// "which service has an operation that converts currencies?" and get the
// service and operation name back together.
//
// # Usage
//
//	idx, err := search.NewOperationIndex(search.OperationIndexConfig{})
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	_ = idx.IndexService("svc-a", json.RawMessage(`[{"name":"getWeather","description":"Current weather for a city"}]`))
//	hits, _ := idx.Search("weather city", 5)
//
// The index plugs into the registry as its Indexer, so it stays in step
// with registrations.
//
// # Behavior
//
// Re-indexing a service replaces all of its previous documents in one
// batch. Unchanged operation lists are detected by fingerprint and skipped.
// Empty queries return the first N documents in ID order. Non-empty queries
// use BM25 ranking with deterministic tie-breaking (score DESC, then ID ASC).
//
// # Thread Safety
//
// OperationIndex is safe for concurrent use.
package search
