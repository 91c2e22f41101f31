// Package embedding turns service descriptions and queries into fixed
// dimension vectors.
//
// [Provider] is the contract the registry depends on. Two implementations
// ship with the package:
//
//   - [OpenAI] talks to any OpenAI-compatible embeddings endpoint. The
//     defaults target DashScope's compatible mode with text-embedding-v4
//     at 1024 dimensions.
//   - [Hash] is a deterministic feature-hashing embedder that needs no
//     network access. It is meant for development and tests.
//
// [WithRetry] decorates any provider with the bounded backoff policy from
// the retry package.
package embedding
