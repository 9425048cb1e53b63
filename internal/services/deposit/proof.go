package deposit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	apperrors "settlr/internal/errors"

	"github.com/gabriel-vasile/mimetype"
)

var allowedProofTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// ValidateProof sniffs the upload and returns its file extension.
func ValidateProof(data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.Validation("payment proof is required for manual deposits")
	}
	if len(data) > MaxProofSize {
		return "", apperrors.Validation("payment proof must not exceed 2MB")
	}
	mt := mimetype.Detect(data)
	for _, allowed := range allowedProofTypes {
		if mt.Is(allowed) {
			return mt.Extension(), nil
		}
	}
	return "", apperrors.Validation("payment proof must be a jpg, png or pdf file, got %s", mt.String())
}

// FileProofStore writes proofs under a local directory.
type FileProofStore struct {
	dir string
}

func NewFileProofStore(dir string) (*FileProofStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}
	return &FileProofStore{dir: dir}, nil
}

func (s *FileProofStore) Save(_ context.Context, reference, ext string, data []byte) (string, error) {
	key := filepath.Base(reference) + ext
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o640); err != nil {
		return "", fmt.Errorf("failed to store payment proof: %w", err)
	}
	return key, nil
}

func (s *FileProofStore) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
