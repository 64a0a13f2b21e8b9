package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

// ErrInvalidBlobKey indicates a blob key that is not a plain file name.
var ErrInvalidBlobKey = errors.New("invalid blob key")

// BlobStore implements storage.BlobStore with one subdirectory per tenant.
type BlobStore struct {
	dir string
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates the store, creating dir if needed.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &BlobStore{dir: dir}, nil
}

func (s *BlobStore) path(tenant core.TenantID, key string) (string, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return "", err
	}
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBlobKey, key)
	}
	return filepath.Join(s.dir, string(tenant), key), nil
}

// PutBlob stores data under the tenant's namespace.
func (s *BlobStore) PutBlob(ctx context.Context, tenant core.TenantID, key string, data []byte) error {
	path, err := s.path(tenant, key)
	if err != nil {
		return err
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// GetBlob reads a blob.
func (s *BlobStore) GetBlob(ctx context.Context, tenant core.TenantID, key string) ([]byte, error) {
	path, err := s.path(tenant, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// DeleteBlob removes a blob. Missing blobs are not an error.
func (s *BlobStore) DeleteBlob(ctx context.Context, tenant core.TenantID, key string) error {
	path, err := s.path(tenant, key)
	if err != nil {
		return err
	}
	return removeIfExists(path)
}
