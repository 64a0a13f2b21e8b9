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
	"errors"
	"log/slog"
)

// Repositories bundles the metadata repositories sharing one backend.
type Repositories struct {
	Backend       *Backend
	Documents     *DocumentRepository
	Tenants       *TenantRepository
	Conversations *ConversationRepository
}

// OpenRepositories opens the backend at path and creates every repository on it.
func OpenRepositories(path string, inMemory bool, logger *slog.Logger) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory, logger)
	if err != nil {
		return nil, err
	}

	docRepo, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	convRepo, err := NewConversationRepository(backend)
	if err != nil {
		docRepo.Close()
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:       backend,
		Documents:     docRepo,
		Tenants:       NewTenantRepository(backend),
		Conversations: convRepo,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories() (*Repositories, error) {
	return OpenRepositories("", true, nil)
}

// Close releases every repository and then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Conversations.Close(),
		r.Tenants.Close(),
		r.Documents.Close(),
		r.Backend.Close(),
	)
}
