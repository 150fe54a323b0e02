package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrDimension is returned when two embeddings cannot be compared.
	ErrDimension = errors.New("embedding dimension mismatch")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrNoIndex is returned when a lookup needs a vector store and none is
	// configured.
	ErrNoIndex = errors.New("vector index is not configured")

	// ErrNoEmbedding is returned by Similar for items without an embedding.
	ErrNoEmbedding = errors.New("item has no embedding")
)
