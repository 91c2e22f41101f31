package registry

import "errors"

// Sentinel errors for consistent error handling.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrEmbedding      = errors.New("embedding failed")
	ErrStoreInit      = errors.New("vector store initialization failed")
	ErrStoreWrite     = errors.New("vector store write failed")
	ErrStoreQuery     = errors.New("vector store query failed")
	ErrNotFound       = errors.New("service not found")
)
