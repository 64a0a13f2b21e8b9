package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
	"github.com/poiesic/querysafe/core"
	"github.com/poiesic/querysafe/storage"
)

const (
	chunkFileSuffix = "-chunks.json"
	indexFileSuffix = "-index.index"
	backupSuffix    = ".prev"
)

// json is the sonic configuration compatible with encoding/json.
var json = sonic.ConfigStd

// ArtifactStore implements storage.ArtifactStore on a directory.
type ArtifactStore struct {
	dir string
}

var _ storage.ArtifactStore = (*ArtifactStore)(nil)

// NewArtifactStore creates the store, creating dir if needed.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	return &ArtifactStore{dir: dir}, nil
}

// ChunkPath returns the chunk artifact path of a tenant.
func (s *ArtifactStore) ChunkPath(tenant core.TenantID) string {
	return filepath.Join(s.dir, string(tenant)+chunkFileSuffix)
}

// IndexPath returns the index artifact path of a tenant.
func (s *ArtifactStore) IndexPath(tenant core.TenantID) string {
	return filepath.Join(s.dir, string(tenant)+indexFileSuffix)
}

// WriteArtifacts replaces both artifacts. Both files are staged before
// either is renamed into place. The previous index is kept as a backup until
// the chunk file is committed and restored if that rename fails, so a failed
// write leaves the previous pair intact.
func (s *ArtifactStore) WriteArtifacts(ctx context.Context, tenant core.TenantID, chunks []string, index []byte) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}
	if chunks == nil {
		chunks = []string{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	indexPath, chunkPath := s.IndexPath(tenant), s.ChunkPath(tenant)
	indexTmp, err := stageFile(indexPath, index)
	if err != nil {
		return fmt.Errorf("write index artifact: %w", err)
	}
	chunkTmp, err := stageFile(chunkPath, data)
	if err != nil {
		_ = os.Remove(indexTmp)
		return fmt.Errorf("write chunk artifact: %w", err)
	}

	backup := indexPath + backupSuffix
	hadIndex := true
	if err := os.Rename(indexPath, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(indexTmp)
			_ = os.Remove(chunkTmp)
			return fmt.Errorf("back up index artifact: %w", err)
		}
		hadIndex = false
	}

	if err := os.Rename(indexTmp, indexPath); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(chunkTmp)
		return errors.Join(fmt.Errorf("write index artifact: %w", err), s.restoreIndex(indexPath, backup, hadIndex))
	}
	if err := os.Rename(chunkTmp, chunkPath); err != nil {
		_ = os.Remove(chunkTmp)
		return errors.Join(fmt.Errorf("write chunk artifact: %w", err), s.restoreIndex(indexPath, backup, hadIndex))
	}
	return removeIfExists(backup)
}

// restoreIndex puts the backed-up index back, or removes the new index when
// there was none before.
func (s *ArtifactStore) restoreIndex(indexPath, backup string, hadIndex bool) error {
	if !hadIndex {
		return removeIfExists(indexPath)
	}
	if err := os.Rename(backup, indexPath); err != nil {
		return fmt.Errorf("restore index artifact: %w", err)
	}
	return nil
}

// ReadArtifacts loads both artifacts.
func (s *ArtifactStore) ReadArtifacts(ctx context.Context, tenant core.TenantID) ([]string, []byte, error) {
	if err := core.ValidateTenantID(tenant); err != nil {
		return nil, nil, err
	}
	index, err := os.ReadFile(s.IndexPath(tenant))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, err
	}
	data, err := os.ReadFile(s.ChunkPath(tenant))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, err
	}

	var chunks []string
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", storage.ErrCorruptArtifact, s.ChunkPath(tenant), err)
	}
	return chunks, index, nil
}

// DeleteArtifacts removes both artifacts.
func (s *ArtifactStore) DeleteArtifacts(ctx context.Context, tenant core.TenantID) error {
	if err := core.ValidateTenantID(tenant); err != nil {
		return err
	}
	return errors.Join(
		removeIfExists(s.ChunkPath(tenant)),
		removeIfExists(s.IndexPath(tenant)),
	)
}
