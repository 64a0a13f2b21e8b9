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


package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID identifies documents and messages. IDs come from database sequences,
// so they grow in insertion order.
type ID uint64

// ContentHash returns the hex encoded BLAKE2b-256 digest of data.
// Used to recognise re-uploads of an identical document.
func ContentHash(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TenantID identifies one chatbot, the unit of data isolation.
type TenantID string

// String implements fmt.Stringer.
func (t TenantID) String() string {
	return string(t)
}

// Status is the lifecycle status of a tenant's knowledge base.
type Status string

const (
	// StatusTraining means an ingestion run is active or pending, or the
	// tenant has never been built.
	StatusTraining Status = "training"
	// StatusReady means the last ingestion run published a generation.
	StatusReady Status = "ready"
	// StatusFailed means the last ingestion run was abandoned.
	StatusFailed Status = "failed"
)

// Role identifies who authored a conversation message.
type Role int

const (
	// RoleUser is a message typed by the end user.
	RoleUser Role = iota + 1
	// RoleBot is a generated answer.
	RoleBot
)

// Label returns the turn label used when rendering history into a prompt.
func (r Role) Label() string {
	if r == RoleBot {
		return "Bot"
	}
	return "User"
}

// Document is an uploaded artifact. Immutable once stored.
type Document struct {
	Id          ID
	Tenant      TenantID
	Name        string // Sanitised original filename
	MimeType    string
	Size        int64
	ContentHash string // BLAKE2b-256 of the raw bytes
	BlobKey     string // Key of the raw bytes in the blob store
	UploadedAt  time.Time
}

// UnitSource records how the text of a ContentUnit was obtained.
type UnitSource int

const (
	// SourceText is text extracted directly from the document.
	SourceText UnitSource = iota + 1
	// SourceCaption is a description synthesised from a rendered image.
	SourceCaption
)

// ContentUnit is one extracted unit of text (a page or a described image).
// Units live only for the duration of an ingestion run.
type ContentUnit struct {
	Tenant     TenantID
	DocumentId ID
	Sequence   int
	Source     UnitSource
	Text       string
}

// Chunk is a bounded slice of a ContentUnit's text.
// Position is the chunk's offset in the tenant's chunk sequence and equals the
// vector index position that encodes it.
type Chunk struct {
	Tenant     TenantID
	Position   int
	DocumentId ID
	Text       string
}

// TenantState is the durable bookkeeping for one tenant.
type TenantState struct {
	Tenant          TenantID
	Status          Status
	Generation      uint64 // Last published generation, 0 if never built
	ModelTag        string // Embedding model the published index was built with
	ChunkCount      int
	Dimension       int
	LastError       string
	FailedDocuments []string // Names of documents skipped by the last run
	Running         bool     // Set while a run is in flight, cleared on completion
	UpdatedAt       time.Time
}

// Indexed reports whether the tenant has a published generation.
func (s *TenantState) Indexed() bool {
	return s != nil && s.Generation > 0
}

// Conversation groups the messages exchanged with one visitor of a tenant.
type Conversation struct {
	Id          string
	Tenant      TenantID
	Visitor     string // Session or user identifier supplied by the caller
	StartedAt   time.Time
	LastUpdated time.Time
}

// Message is one turn of a conversation.
type Message struct {
	Id           ID
	Conversation string
	Tenant       TenantID
	Role         Role
	Text         string
	Timestamp    time.Time
}

// Turn is caller supplied conversation history.
type Turn struct {
	Role Role
	Text string
}

// RetrievedChunk is a retrieval hit mapped back to its chunk text.
type RetrievedChunk struct {
	Position int
	Text     string
	Score    float32
}
