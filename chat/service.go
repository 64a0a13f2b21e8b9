// Package chat answers visitor questions for a tenant and records the
// conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/querysafe/answer"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/retrieval"
	"github.com/poiesic/querysafe/storage"
)

var (
	// ErrConversationRepositoryRequired is returned when a conversation repository is not provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrComposerRequired is returned when a composer is not provided.
	ErrComposerRequired = errors.New("composer required")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Request is one visitor question.
type Request struct {
	Tenant         core.TenantID
	Query          string
	ConversationID string      // optional; unknown IDs start a new conversation
	Visitor        string      // optional session identifier
	History        []core.Turn // optional; replaces the stored history when set
}

// Response is the answer to a Request.
type Response struct {
	Answer         string
	ConversationID string
	Generation     uint64
	Retrieved      []core.RetrievedChunk
}

// Service answers questions against a tenant's current generation.
type Service struct {
	conversations storage.ConversationRepository
	retriever     *retrieval.Retriever
	composer      *answer.Composer
	topK          int
	historyWindow int
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(s *Service) error {
		s.topK = k
		return nil
	}
}

// WithHistoryWindow sets how many stored messages are loaded as history.
func WithHistoryWindow(n int) Option {
	return func(s *Service) error {
		s.historyWindow = max(n, 0)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a Service.
func NewService(conversations storage.ConversationRepository, retriever *retrieval.Retriever, composer *answer.Composer, opts ...Option) (*Service, error) {
	if conversations == nil {
		return nil, ErrConversationRepositoryRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if composer == nil {
		return nil, ErrComposerRequired
	}

	s := &Service{
		conversations: conversations,
		retriever:     retriever,
		composer:      composer,
		topK:          retrieval.DefaultK,
		historyWindow: answer.DefaultHistoryWindow,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "chat")
	return s, nil
}

// Answer retrieves context for req, generates a reply and stores both the
// question and the reply. Fails with *core.NotIndexedError when the tenant
// has nothing to serve and *core.GenerationError when generation fails.
func (s *Service) Answer(ctx context.Context, req Request) (*Response, error) {
	if err := core.ValidateTenantID(req.Tenant); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := s.retriever.Retrieve(ctx, req.Tenant, query, s.topK)
	if err != nil {
		return nil, err
	}

	conv, err := s.conversation(ctx, req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("tenant", req.Tenant, "conversation", conv.Id)

	if _, err := s.conversations.AddMessages(ctx, &core.Message{
		Conversation: conv.Id,
		Tenant:       req.Tenant,
		Role:         core.RoleUser,
		Text:         query,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	history := req.History
	if history == nil {
		history, err = s.storedHistory(ctx, req.Tenant, conv.Id)
		if err != nil {
			return nil, err
		}
	} else {
		history = append(slices.Clone(history), core.Turn{Role: core.RoleUser, Text: query})
	}

	reply, err := s.composer.Compose(ctx, answer.Request{
		Tenant:    req.Tenant,
		Query:     query,
		History:   history,
		Retrieved: result.Texts(),
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.conversations.AddMessages(ctx, &core.Message{
		Conversation: conv.Id,
		Tenant:       req.Tenant,
		Role:         core.RoleBot,
		Text:         reply,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	logger.Debug("answered question", "generation", result.Generation, "retrieved", len(result.Chunks))
	return &Response{
		Answer:         reply,
		ConversationID: conv.Id,
		Generation:     result.Generation,
		Retrieved:      result.Chunks,
	}, nil
}

// conversation returns the conversation named by req, creating one when
// none is named or the named one does not exist.
func (s *Service) conversation(ctx context.Context, req Request) (*core.Conversation, error) {
	if req.ConversationID != "" {
		conv, err := s.conversations.GetConversation(ctx, req.Tenant, req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		s.logger.Debug("unknown conversation, starting a new one", "tenant", req.Tenant, "conversation", req.ConversationID)
	}

	conv, err := s.conversations.CreateConversation(ctx, &core.Conversation{
		Id:      uuid.NewString(),
		Tenant:  req.Tenant,
		Visitor: req.Visitor,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("created conversation", "tenant", req.Tenant, "conversation", conv.Id)
	return conv, nil
}

// storedHistory returns the most recent messages, oldest first.
func (s *Service) storedHistory(ctx context.Context, tenant core.TenantID, conversation string) ([]core.Turn, error) {
	msgs, err := s.conversations.GetRecentMessages(ctx, tenant, conversation, s.historyWindow)
	if err != nil {
		return nil, err
	}
	history := make([]core.Turn, len(msgs))
	for i, msg := range msgs {
		history[len(msgs)-1-i] = core.Turn{Role: msg.Role, Text: msg.Text}
	}
	return history, nil
}

// History returns up to limit messages of a conversation, oldest first.
func (s *Service) History(ctx context.Context, tenant core.TenantID, conversation string, limit int) ([]*core.Message, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	if _, err := s.conversations.GetConversation(ctx, tenant, conversation); err != nil {
		return nil, err
	}
	msgs, err := s.conversations.GetRecentMessages(ctx, tenant, conversation, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// Conversations lists the tenant's conversations, most recently updated first.
func (s *Service) Conversations(ctx context.Context, tenant core.TenantID) ([]*core.Conversation, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, err
	}
	return s.conversations.ListConversations(ctx, tenant)
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, tenant core.TenantID, conversation string) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}
	if err := s.conversations.DeleteConversation(ctx, tenant, conversation); err != nil {
		return err
	}
	s.logger.Info("deleted conversation", "tenant", tenant, "conversation", conversation)
	return nil
}

// DeleteConversations removes every conversation of tenant and returns how
// many were removed.
func (s *Service) DeleteConversations(ctx context.Context, tenant core.TenantID) (int, error) {
	convs, err := s.Conversations(ctx, tenant)
	if err != nil {
		return 0, err
	}
	var errs []error
	deleted := 0
	for _, conv := range convs {
		err := s.conversations.DeleteConversation(ctx, tenant, conv.Id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = append(errs, fmt.Errorf("conversation %s: %w", conv.Id, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}
