package badger

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (*ConversationRepository, error) {
	idSeq, err := backend.GetSequence(messageIDSeq)
	if err != nil {
		return nil, err
	}

	return &ConversationRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *ConversationRepository) Close() error {
	return r.idSeq.Release()
}

// CreateConversation stores a new conversation.
func (r *ConversationRepository) CreateConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	if err := core.ValidateTenantID(conv.Tenant); err != nil {
		return nil, err
	}
	if conv.Id == "" {
		return nil, storage.ErrMissingID
	}

	err := r.backend.update(func(tx *badger.Txn) error {
		key := makeConversationKey(conv.Tenant, conv.Id)
		existing, err := getValue(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		now := time.Now().UTC()
		if conv.StartedAt.IsZero() {
			conv.StartedAt = now
		}
		conv.LastUpdated = conv.StartedAt
		if err := tx.Set(key, storage.MarshalConversation(conv)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation.
func (r *ConversationRepository) GetConversation(ctx context.Context, tenant core.TenantID, id string) (*core.Conversation, error) {
	var conv *core.Conversation
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		conv, err = readConversation(tx, makeConversationKey(tenant, id))
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return conv, err
}

// ListConversations returns the tenant's conversations, most recently updated first.
func (r *ConversationRepository) ListConversations(ctx context.Context, tenant core.TenantID) ([]*core.Conversation, error) {
	var convs []*core.Conversation
	err := r.backend.view(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeTenantScope(conversationPrefix, tenant), func(_, val []byte) error {
			conv, err := storage.UnmarshalConversation(val)
			if err != nil {
				return err
			}
			convs = append(convs, conv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(convs, func(a, b *core.Conversation) int {
		if c := b.LastUpdated.Compare(a.LastUpdated); c != 0 {
			return c
		}
		return strings.Compare(a.Id, b.Id)
	})
	return convs, nil
}

// AddMessages appends messages and bumps the LastUpdated of each touched conversation.
func (r *ConversationRepository) AddMessages(ctx context.Context, msgs ...*core.Message) ([]*core.Message, error) {
	for _, msg := range msgs {
		if msg != nil && msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
	}

	err := r.backend.update(func(tx *badger.Txn) error {
		touched := make(map[string]*core.Conversation)
		for _, msg := range msgs {
			convKey := makeConversationKey(msg.Tenant, msg.Conversation)
			conv, ok := touched[string(convKey)]
			if !ok {
				var err error
				conv, err = readConversation(tx, convKey)
				if err != nil {
					return err
				}
				if conv == nil {
					return storage.ErrNotFound
				}
				touched[string(convKey)] = conv
			}

			if msg.Id == 0 {
				id, err := nextID(r.idSeq)
				if err != nil {
					return err
				}
				msg.Id = core.ID(id)
			}

			key := makeMessageKey(msg.Tenant, msg.Conversation, msg.Timestamp, msg.Id)
			if err := tx.Set(key, storage.MarshalMessage(msg)); err != nil {
				return err
			}
			if msg.Timestamp.After(conv.LastUpdated) {
				conv.LastUpdated = msg.Timestamp
			}
		}

		for key, conv := range touched {
			if err := tx.Set([]byte(key), storage.MarshalConversation(conv)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetRecentMessages retrieves the most recent messages of a conversation, newest first.
func (r *ConversationRepository) GetRecentMessages(ctx context.Context, tenant core.TenantID, conversation string, limit int) ([]*core.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var results []*core.Message
	err := r.backend.view(func(tx *badger.Txn) error {
		prefix := makePartialMessageKey(tenant, conversation)

		// Use reverse iterator to get most recent messages first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek to the last possible key under the prefix
		seekKey := append(append([]byte{}, prefix...), 0xFF)

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix) && len(results) < limit; iter.Next() {
			var msg *core.Message
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				msg, err = storage.UnmarshalMessage(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, msg)
		}
		return nil
	})

	return results, err
}

// DeleteConversation removes a conversation and every message in it.
func (r *ConversationRepository) DeleteConversation(ctx context.Context, tenant core.TenantID, id string) error {
	return r.backend.update(func(tx *badger.Txn) error {
		convKey := makeConversationKey(tenant, id)
		conv, err := readConversation(tx, convKey)
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}

		var keys [][]byte
		if err := scanKeys(tx, makePartialMessageKey(tenant, id), func(key []byte) error {
			keys = append(keys, key)
			return nil
		}); err != nil {
			return err
		}
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(convKey); err != nil {
			return err
		}
		return nil
	})
}

// readConversation reads a conversation from the transaction. Returns nil, nil if absent.
func readConversation(tx *badger.Txn, key []byte) (*core.Conversation, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalConversation(val)
}
