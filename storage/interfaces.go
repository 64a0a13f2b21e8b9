// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"context"

	"github.com/poiesic/querysafe/core"
)

// Repository is the lifecycle shared by the metadata repositories.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Close releases repository resources. It does not close a shared backend.
	Close() error
}

// DocumentRepository stores uploaded document metadata.
type DocumentRepository interface {
	Repository
	// AddDocuments stores documents. Documents with Id=0 receive a new ID from
	// a sequence; IDs grow monotonically so ID order is upload order.
	// UploadedAt is set if zero. Returns the documents with IDs populated.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// GetDocument returns a single document.
	// Returns ErrNotFound if the document doesn't exist in the tenant.
	GetDocument(ctx context.Context, tenant core.TenantID, id core.ID) (*core.Document, error)

	// ListDocuments returns every document of the tenant in upload order.
	ListDocuments(ctx context.Context, tenant core.TenantID) ([]*core.Document, error)

	// FindDocumentByHash returns the tenant's document with the given content hash.
	// Returns ErrNotFound if there is none.
	FindDocumentByHash(ctx context.Context, tenant core.TenantID, hash string) (*core.Document, error)

	// DeleteDocuments removes documents by ID.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, tenant core.TenantID, ids ...core.ID) error

	// ListTenants returns every tenant that owns at least one document.
	ListTenants(ctx context.Context) ([]core.TenantID, error)
}

// TenantRepository stores durable tenant state.
type TenantRepository interface {
	Repository
	// SaveTenantState upserts the state. UpdatedAt is set to now.
	SaveTenantState(ctx context.Context, state *core.TenantState) error

	// LoadTenantState returns the stored state, or nil with no error if the
	// tenant has never been recorded.
	LoadTenantState(ctx context.Context, tenant core.TenantID) (*core.TenantState, error)

	// ListTenantStates returns every recorded tenant state.
	ListTenantStates(ctx context.Context) ([]*core.TenantState, error)

	// DeleteTenantState forgets the tenant. A missing state is not an error.
	DeleteTenantState(ctx context.Context, tenant core.TenantID) error
}

// ConversationRepository stores conversations and their messages.
type ConversationRepository interface {
	Repository
	// CreateConversation stores a new conversation. Returns ErrDuplicateKey if
	// the ID is already taken.
	CreateConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error)

	// GetConversation returns a conversation.
	// Returns ErrNotFound if it doesn't exist within the tenant.
	GetConversation(ctx context.Context, tenant core.TenantID, id string) (*core.Conversation, error)

	// ListConversations returns the tenant's conversations, most recently
	// updated first.
	ListConversations(ctx context.Context, tenant core.TenantID) ([]*core.Conversation, error)

	// AddMessages appends messages to their conversation and bumps its
	// LastUpdated. Messages with Id=0 receive a new ID from a sequence.
	AddMessages(ctx context.Context, msgs ...*core.Message) ([]*core.Message, error)

	// GetRecentMessages returns up to limit messages of a conversation,
	// most recent first.
	GetRecentMessages(ctx context.Context, tenant core.TenantID, conversation string, limit int) ([]*core.Message, error)

	// DeleteConversation removes a conversation and all of its messages.
	DeleteConversation(ctx context.Context, tenant core.TenantID, id string) error
}

// BlobStore stores raw uploaded bytes, namespaced per tenant.
type BlobStore interface {
	PutBlob(ctx context.Context, tenant core.TenantID, key string, data []byte) error
	// GetBlob returns ErrNotFound if the blob doesn't exist.
	GetBlob(ctx context.Context, tenant core.TenantID, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, tenant core.TenantID, key string) error
}

// ArtifactStore persists the published retrieval artifacts of a tenant:
// the ordered chunk texts and the serialized vector index.
type ArtifactStore interface {
	// WriteArtifacts replaces the tenant's artifacts. Each artifact is replaced
	// atomically; readers never observe a partially written file.
	WriteArtifacts(ctx context.Context, tenant core.TenantID, chunks []string, index []byte) error

	// ReadArtifacts returns the tenant's artifacts, or ErrNotFound if either is missing.
	ReadArtifacts(ctx context.Context, tenant core.TenantID) ([]string, []byte, error)

	// DeleteArtifacts removes the tenant's artifacts. Missing artifacts are not an error.
	DeleteArtifacts(ctx context.Context, tenant core.TenantID) error
}
