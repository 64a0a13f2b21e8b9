package retrieval

import "errors"

var (
	// ErrRegistryRequired is returned when a snapshot registry is not provided.
	ErrRegistryRequired = errors.New("snapshot registry required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")
)
