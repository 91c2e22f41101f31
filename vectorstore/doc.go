// Package vectorstore defines the vector store contract the service registry
// is built on, along with several adapters.
//
// The core contract is deliberately small: ensure a collection of a fixed
// dimension, upsert a vector with string fields by id, and query the top-k
// nearest records. Stores that can do more advertise it through optional
// interfaces:
//
//   - [Getter] fetches a record directly by id.
//   - [Sampler] returns a broad sample without a query vector.
//
// Adapters:
//
//   - [Chromem]: embedded chromem-go database, in memory or persisted to disk.
//   - [Qdrant]: remote Qdrant over gRPC.
//   - [Bolt]: single-file bbolt database with brute-force cosine ranking.
//   - [Memory]: in-memory, similarity-only store.
//
// [WithRetry] wraps any Store so collection calls retry transient failures.
package vectorstore
