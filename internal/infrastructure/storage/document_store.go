// Package storage keeps request attachments on the local filesystem.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
)

// LocalDocumentStore implements port.DocumentStore for local filesystem.
// Documents live under <baseDir>/<request id>/<file name>.
type LocalDocumentStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalDocumentStore creates a new LocalDocumentStore
func NewLocalDocumentStore(baseDir string, logger *zap.Logger) *LocalDocumentStore {
	return &LocalDocumentStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Put writes the document and returns its reference relative to baseDir
func (s *LocalDocumentStore) Put(ctx context.Context, requestID, name string, content []byte) (string, error) {
	folder := sanitizeFolder(requestID)
	if folder == "" {
		return "", fmt.Errorf("cannot store document: invalid request id %q", requestID)
	}
	file := sanitizeFileName(name)
	if file == "" {
		return "", fmt.Errorf("cannot store document: invalid file name %q", name)
	}

	ref := folder + "/" + file
	fullPath := s.fullPath(ref)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create document folder",
			zap.String("request_id", requestID),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write document",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write document: %w", err)
	}

	s.logger.Debug("Document saved",
		zap.String("ref", ref),
		zap.Int("size", len(content)))
	return ref, nil
}

// Get reads a document by the reference Put returned
func (s *LocalDocumentStore) Get(ctx context.Context, ref string) ([]byte, error) {
	fullPath := s.fullPath(ref)
	if err := s.validatePath(fullPath); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read document",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return content, nil
}

// Delete removes every document stored for a request. Missing folders are ignored.
func (s *LocalDocumentStore) Delete(ctx context.Context, requestID string) error {
	folder := sanitizeFolder(requestID)
	if folder == "" {
		return nil
	}
	if err := os.RemoveAll(s.fullPath(folder)); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

func (s *LocalDocumentStore) fullPath(ref string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(ref))
}

// validatePath checks that the path stays within baseDir
func (s *LocalDocumentStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

var _ port.DocumentStore = (*LocalDocumentStore)(nil)
