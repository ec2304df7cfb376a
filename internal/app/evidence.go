package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileEvidenceStore persists evidence blobs on the local filesystem and
// returns relative path references. Scopes map to subdirectories.
type FileEvidenceStore struct {
	root string
}

// NewFileEvidenceStore creates the store rooted at dir.
func NewFileEvidenceStore(dir string) *FileEvidenceStore {
	return &FileEvidenceStore{root: strings.TrimRight(dir, "/")}
}

// Store writes the blob under scope/ with a collision-free name and returns
// the reference relative to the store root.
func (s *FileEvidenceStore) Store(ctx context.Context, scope string, name string, blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", fmt.Errorf("evidence blob is empty")
	}

	// Strip any path components a caller might smuggle in.
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = "evidence"
	}
	ref := filepath.Join(scope, uuid.NewString()+"_"+base)

	full := filepath.Join(s.root, ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}
	if err := os.WriteFile(full, blob, 0o644); err != nil {
		return "", fmt.Errorf("failed to write evidence file: %w", err)
	}
	return ref, nil
}
