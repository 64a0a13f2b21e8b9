package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

// TenantRepository implements storage.TenantRepository for BadgerDB.
type TenantRepository struct {
	backend *Backend
}

var _ storage.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(backend *Backend) *TenantRepository {
	return &TenantRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is shared.
func (r *TenantRepository) Close() error {
	return nil
}

// SaveTenantState persists the state of a tenant.
func (r *TenantRepository) SaveTenantState(ctx context.Context, state *core.TenantState) error {
	if err := core.ValidateTenantID(state.Tenant); err != nil {
		return err
	}
	return r.backend.update(func(tx *badger.Txn) error {
		state.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := tx.Set(makeTenantKey(state.Tenant), storage.MarshalTenantState(state)); err != nil {
			return err
		}
		return nil
	})
}

// LoadTenantState retrieves the state of a tenant.
// Returns nil, nil if the tenant has never been recorded.
func (r *TenantRepository) LoadTenantState(ctx context.Context, tenant core.TenantID) (*core.TenantState, error) {
	var state *core.TenantState
	err := r.backend.view(func(tx *badger.Txn) error {
		val, err := getValue(tx, makeTenantKey(tenant))
		if err != nil || val == nil {
			return err
		}
		state, err = storage.UnmarshalTenantState(val)
		return err
	})
	return state, err
}

// ListTenantStates returns every recorded tenant state ordered by tenant ID.
func (r *TenantRepository) ListTenantStates(ctx context.Context) ([]*core.TenantState, error) {
	var states []*core.TenantState
	err := r.backend.view(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(tenantPrefix+":"), func(_, val []byte) error {
			state, err := storage.UnmarshalTenantState(val)
			if err != nil {
				return err
			}
			states = append(states, state)
			return nil
		})
	})
	return states, err
}

// DeleteTenantState removes the state of a tenant.
func (r *TenantRepository) DeleteTenantState(ctx context.Context, tenant core.TenantID) error {
	return r.backend.update(func(tx *badger.Txn) error {
		return tx.Delete(makeTenantKey(tenant))
	})
}
