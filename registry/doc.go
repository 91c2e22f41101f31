// Package registry maps service identities to descriptors and finds services
// by semantic similarity.
//
// A Registry is built from an embedding provider and a vector store, both
// injected:
//
//	reg, err := registry.New(registry.Options{
//	    Embedder: embedding.NewHash(256),
//	    Store:    vectorstore.NewMemory(),
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = reg.Register(ctx, registry.Descriptor{
//	    Identity:    "svc-a",
//	    Description: "weather lookup",
//	    Endpoint:    "http://svc-a/mcp",
//	})
//
//	results, err := reg.SearchBySimilarity(ctx, "weather", 3)
//	endpoint, err := reg.ResolveEndpoint(ctx, "svc-a")
//
// # Collections
//
// The backing collection is created on first use with the configured
// dimension, or eagerly via [Registry.Open]. Creation is idempotent across
// restarts.
//
// # Resolution
//
// When the store's collections implement [vectorstore.Getter],
// ResolveEndpoint is a direct key lookup. Otherwise it falls back to two
// similarity probes: a narrow probe on the identity text and then a broad
// sample. Both probe sizes are tunable.
//
// # Operations
//
// A descriptor's operation list is stored as an opaque JSON blob. The
// registry never inspects it; [Descriptor.DecodeOperations] is provided for
// callers at the boundary.
package registry
