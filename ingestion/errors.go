package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrTenantRepositoryRequired is returned when a tenant repository is not provided.
	ErrTenantRepositoryRequired = errors.New("tenant repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrArtifactStoreRequired is returned when an artifact store is not provided.
	ErrArtifactStoreRequired = errors.New("artifact store required")

	// ErrRegistryRequired is returned when a snapshot registry is not provided.
	ErrRegistryRequired = errors.New("snapshot registry required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrCoordinatorClosed is returned by Schedule after Close.
	ErrCoordinatorClosed = errors.New("coordinator closed")

	// ErrRunInProgress is returned by Purge while the tenant has a run in
	// flight or queued.
	ErrRunInProgress = errors.New("ingestion run in progress")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
