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


package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// AddDocuments stores documents and their content hash index entries.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	err := r.backend.update(func(tx *badger.Txn) error {
		for _, doc := range docs {
			if doc.Id == 0 {
				id, err := nextID(r.idSeq)
				if err != nil {
					return err
				}
				doc.Id = core.ID(id)
			}
			if doc.UploadedAt.IsZero() {
				doc.UploadedAt = time.Now().UTC()
			}

			if err := tx.Set(makeDocumentKey(doc.Tenant, doc.Id), storage.MarshalDocument(doc)); err != nil {
				return err
			}
			if doc.ContentHash != "" {
				if err := tx.Set(makeDocumentHashKey(doc.Tenant, doc.ContentHash), storage.MarshalID(doc.Id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument retrieves a single document.
func (r *DocumentRepository) GetDocument(ctx context.Context, tenant core.TenantID, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.view(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(tenant, id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// ListDocuments returns the tenant's documents in upload order.
func (r *DocumentRepository) ListDocuments(ctx context.Context, tenant core.TenantID) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.view(func(tx *badger.Txn) error {
		return scanPrefix(tx, makeTenantScope(documentPrefix, tenant), func(_, val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			results = append(results, doc)
			return nil
		})
	})
	return results, err
}

// FindDocumentByHash looks a document up through the content hash index.
func (r *DocumentRepository) FindDocumentByHash(ctx context.Context, tenant core.TenantID, hash string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.view(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeDocumentHashKey(tenant, hash))
		if err != nil {
			return err
		}
		if val == nil {
			return storage.ErrNotFound
		}
		id, err := storage.UnmarshalID(val)
		if err != nil {
			return err
		}
		result, err = readDocument(tx, makeDocumentKey(tenant, id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// DeleteDocuments removes documents and their hash index entries.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, tenant core.TenantID, ids ...core.ID) error {
	return r.backend.update(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeDocumentKey(tenant, id)
			doc, err := readDocument(tx, key)
			if err != nil {
				return err
			}
			if doc == nil {
				return storage.ErrNotFound
			}
			if doc.ContentHash != "" {
				if err := tx.Delete(makeDocumentHashKey(tenant, doc.ContentHash)); err != nil {
					return err
				}
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTenants returns every tenant that owns at least one document, in key order.
func (r *DocumentRepository) ListTenants(ctx context.Context) ([]core.TenantID, error) {
	var tenants []core.TenantID
	prefix := []byte(documentPrefix + ":")
	err := r.backend.view(func(tx *badger.Txn) error {
		return scanKeys(tx, prefix, func(key []byte) error {
			tenant, ok := tenantFromScopedKey(documentPrefix, key)
			if !ok {
				return nil
			}
			if n := len(tenants); n == 0 || tenants[n-1] != tenant {
				tenants = append(tenants, tenant)
			}
			return nil
		})
	})
	return tenants, err
}

// readDocument reads a document from the transaction. Returns nil, nil if absent.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	val, err := getValue(tx, key)
	if err != nil || val == nil {
		return nil, err
	}
	return storage.UnmarshalDocument(val)
}
