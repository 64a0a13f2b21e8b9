package reembed

import "errors"

var (
	// ErrCoordinatorRequired is returned when no coordinator is supplied.
	ErrCoordinatorRequired = errors.New("ingestion coordinator is required")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrRebuildFailed is returned when one or more tenants did not reach
	// ready on the new model.
	ErrRebuildFailed = errors.New("tenant rebuild failed")
)
