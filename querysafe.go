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


// Package querysafe assembles the storage, ingestion and query components
// into a multi-tenant retrieval-augmented question answering engine.
package querysafe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/querysafe/ai"
	"github.com/poiesic/querysafe/ai/openai"
	"github.com/poiesic/querysafe/answer"
	"github.com/poiesic/querysafe/chat"
	"github.com/poiesic/querysafe/chunker"
	"github.com/poiesic/querysafe/config"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/ingestion"
	"github.com/poiesic/querysafe/retrieval"
	"github.com/poiesic/querysafe/snapshot"
	"github.com/poiesic/querysafe/storage"
	"github.com/poiesic/querysafe/storage/badger"
	"github.com/poiesic/querysafe/storage/disk"
)

var (
	// ErrNoFiles is returned when an upload carries no files.
	ErrNoFiles = errors.New("no files uploaded")
)

// Upload is one file handed to the engine.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// Engine owns every component of a querysafe process.
type Engine struct {
	repos       *badger.Repositories
	blobs       *disk.BlobStore
	artifacts   *disk.ArtifactStore
	registry    *snapshot.Registry
	provider    ai.AIProvider
	coordinator *ingestion.Coordinator
	retriever   *retrieval.Retriever
	chat        *chat.Service
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	ingestionOpts []ingestion.Option
	retrievalOpts []retrieval.Option
	chatOpts      []chat.Option
	historyWindow int
	logger        *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider supplies the AI provider directly. The engine closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithIngestionOptions passes options to the ingestion coordinator.
func WithIngestionOptions(opts ...ingestion.Option) Option {
	return func(o *options) {
		o.ingestionOpts = append(o.ingestionOpts, opts...)
	}
}

// WithRetrievalOptions passes options to the retriever.
func WithRetrievalOptions(opts ...retrieval.Option) Option {
	return func(o *options) {
		o.retrievalOpts = append(o.retrievalOpts, opts...)
	}
}

// WithChatOptions passes options to the chat service.
func WithChatOptions(opts ...chat.Option) Option {
	return func(o *options) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// OptionsFromConfig translates cfg into engine options.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	ch, err := chunker.New(
		chunker.WithChunkSize(cfg.Ingestion.ChunkSize),
		chunker.WithChunkOverlap(cfg.Ingestion.ChunkOverlap),
	)
	if err != nil {
		return nil, err
	}

	ingestionOpts := []ingestion.Option{
		ingestion.WithChunker(ch),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithMaxInputChars(cfg.AI.MaxInputChars),
		ingestion.WithRetry(cfg.Ingestion.MaxAttempts, time.Duration(cfg.Ingestion.RetryDelay)),
	}
	if cfg.Ingestion.PoolSize > 0 {
		ingestionOpts = append(ingestionOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if cfg.Ingestion.RunPoolSize > 0 {
		ingestionOpts = append(ingestionOpts, ingestion.WithRunPoolSize(cfg.Ingestion.RunPoolSize))
	}

	return []Option{
		WithAIConfig(cfg.AIConfig()),
		WithIngestionOptions(ingestionOpts...),
		WithRetrievalOptions(retrieval.WithMaxInputChars(cfg.AI.MaxInputChars)),
		WithChatOptions(chat.WithTopK(cfg.Chat.TopK), chat.WithHistoryWindow(cfg.Chat.HistoryWindow)),
	}, nil
}

// Open opens or creates an engine whose state lives under dataDir:
// dataDir/db holds metadata, dataDir/uploads the uploaded documents and
// dataDir/artifacts the published indexes.
func Open(dataDir string, opts ...Option) (*Engine, error) {
	o := &options{aiConfig: ai.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	logger := o.logger

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	e := &Engine{logger: logger.With("component", "engine")}
	var err error
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	e.repos, err = badger.OpenRepositories(filepath.Join(dataDir, "db"), false, logger)
	if err != nil {
		return nil, err
	}
	e.blobs, err = disk.NewBlobStore(filepath.Join(dataDir, "uploads"))
	if err != nil {
		return nil, err
	}
	e.artifacts, err = disk.NewArtifactStore(filepath.Join(dataDir, "artifacts"))
	if err != nil {
		return nil, err
	}
	e.registry, err = snapshot.NewRegistry(e.artifacts, snapshot.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	e.provider = o.provider
	if e.provider == nil {
		e.provider, err = openai.NewProvider(o.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	ingestionOpts := append([]ingestion.Option{ingestion.WithLogger(logger)}, o.ingestionOpts...)
	e.coordinator, err = ingestion.NewCoordinator(ingestion.Stores{
		Documents: e.repos.Documents,
		Tenants:   e.repos.Tenants,
		Blobs:     e.blobs,
		Artifacts: e.artifacts,
	}, e.registry, e.provider, ingestionOpts...)
	if err != nil {
		return nil, err
	}

	retrievalOpts := append([]retrieval.Option{retrieval.WithLogger(logger)}, o.retrievalOpts...)
	e.retriever, err = retrieval.NewRetriever(e.registry, e.provider.Embedder(), retrievalOpts...)
	if err != nil {
		return nil, err
	}
	composer, err := answer.NewComposer(e.provider.Generator(), answer.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	chatOpts := append([]chat.Option{chat.WithLogger(logger)}, o.chatOpts...)
	e.chat, err = chat.NewService(e.repos.Conversations, e.retriever, composer, chatOpts...)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Close waits for in-flight ingestion runs and releases every resource.
func (e *Engine) Close() error {
	var errs []error
	if e.coordinator != nil {
		if err := e.coordinator.Close(); err != nil {
			e.logger.Error("error closing coordinator", "err", err)
			errs = append(errs, err)
		}
	}
	if err := e.closeStores(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeStores() error {
	var errs []error
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.repos != nil {
		if err := e.repos.Close(); err != nil {
			e.logger.Error("error closing repositories", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Coordinator returns the ingestion coordinator.
func (e *Engine) Coordinator() *ingestion.Coordinator {
	return e.coordinator
}

// Retriever returns the retrieval engine.
func (e *Engine) Retriever() *retrieval.Retriever {
	return e.retriever
}

// Chat returns the chat service.
func (e *Engine) Chat() *chat.Service {
	return e.chat
}

// Provider returns the AI provider.
func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

// AddDocument stores one document for tenant without scheduling ingestion.
// Uploading bytes the tenant already holds returns the existing document
// and false.
func (e *Engine) AddDocument(ctx context.Context, tenant core.TenantID, upload Upload) (*core.Document, bool, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, false, err
	}
	if len(upload.Data) == 0 {
		return nil, false, fmt.Errorf("%s: %w", upload.Name, core.ErrEmptyContent)
	}

	hash := core.ContentHash(upload.Data)
	existing, err := e.repos.Documents.FindDocumentByHash(ctx, tenant, hash)
	if err == nil {
		e.logger.Debug("duplicate upload", "tenant", tenant, "name", upload.Name, "document", existing.Id)
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	if err := e.blobs.PutBlob(ctx, tenant, hash, upload.Data); err != nil {
		return nil, false, fmt.Errorf("failed to store %s: %w", upload.Name, err)
	}
	added, err := e.repos.Documents.AddDocuments(ctx, &core.Document{
		Tenant:      tenant,
		Name:        core.SanitizeFilename(upload.Name),
		MimeType:    strings.TrimSpace(upload.MimeType),
		Size:        int64(len(upload.Data)),
		ContentHash: hash,
		BlobKey:     hash,
	})
	if err != nil {
		if delErr := e.blobs.DeleteBlob(ctx, tenant, hash); delErr != nil {
			e.logger.Warn("error removing orphaned blob", "tenant", tenant, "err", delErr)
		}
		return nil, false, err
	}
	return added[0], true, nil
}

// Upload stores files for tenant and schedules one ingestion run for the
// batch. It returns the stored documents in upload order, including
// existing documents matched by content.
func (e *Engine) Upload(ctx context.Context, tenant core.TenantID, uploads ...Upload) ([]*core.Document, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	docs := make([]*core.Document, 0, len(uploads))
	for _, u := range uploads {
		doc, _, err := e.AddDocument(ctx, tenant, u)
		if err != nil {
			return docs, err
		}
		docs = append(docs, doc)
	}
	if err := e.coordinator.Schedule(ctx, tenant); err != nil {
		return docs, err
	}
	return docs, nil
}

// Documents lists tenant's documents in upload order.
func (e *Engine) Documents(ctx context.Context, tenant core.TenantID) ([]*core.Document, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return e.repos.Documents.ListDocuments(ctx, tenant)
}

// DeleteDocument removes a document and its blob and schedules a rebuild.
// The tenant keeps serving its current generation until the rebuild
// publishes.
func (e *Engine) DeleteDocument(ctx context.Context, tenant core.TenantID, id core.ID) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}
	doc, err := e.repos.Documents.GetDocument(ctx, tenant, id)
	if err != nil {
		return err
	}
	if err := e.repos.Documents.DeleteDocuments(ctx, tenant, id); err != nil {
		return err
	}
	if err := e.blobs.DeleteBlob(ctx, tenant, doc.BlobKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.logger.Warn("error deleting blob", "tenant", tenant, "document", id, "err", err)
	}
	return e.coordinator.Schedule(ctx, tenant)
}

// ScheduleIngestion requests a rebuild of tenant's knowledge base.
func (e *Engine) ScheduleIngestion(ctx context.Context, tenant core.TenantID) error {
	return e.coordinator.Schedule(ctx, tenant)
}

// Status returns tenant's lifecycle status.
func (e *Engine) Status(ctx context.Context, tenant core.TenantID) (core.Status, error) {
	return e.coordinator.Status(ctx, tenant)
}

// Answer answers a query against tenant's current generation.
func (e *Engine) Answer(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return e.chat.Answer(ctx, req)
}

// Conversations lists tenant's conversations, most recently updated first.
func (e *Engine) Conversations(ctx context.Context, tenant core.TenantID) ([]*core.Conversation, error) {
	return e.chat.Conversations(ctx, tenant)
}

// History returns up to limit messages of a conversation, oldest first.
func (e *Engine) History(ctx context.Context, tenant core.TenantID, conversation string, limit int) ([]*core.Message, error) {
	return e.chat.History(ctx, tenant, conversation, limit)
}

// DeleteConversation removes a conversation and its messages.
func (e *Engine) DeleteConversation(ctx context.Context, tenant core.TenantID, conversation string) error {
	return e.chat.DeleteConversation(ctx, tenant, conversation)
}

// DeleteChatbot removes tenant entirely: its documents, published index,
// state and conversations. Fails with ingestion.ErrRunInProgress while the
// tenant is being rebuilt.
func (e *Engine) DeleteChatbot(ctx context.Context, tenant core.TenantID) error {
	if err := e.coordinator.Purge(ctx, tenant); err != nil {
		return err
	}
	n, err := e.chat.DeleteConversations(ctx, tenant)
	if err != nil {
		return err
	}
	e.logger.Info("deleted chatbot", "tenant", tenant, "conversations", n)
	return nil
}
