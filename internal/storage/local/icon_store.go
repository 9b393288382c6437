// Package local serves application icons from a directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/progress-overlay/internal/store"
)

// Config captures the parameters for the filesystem icon store.
type Config struct {
	// BaseDir holds one "<package_id>.png" per app.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// IconStore reads and writes icons on the local filesystem.
type IconStore struct {
	baseDir string
}

// New creates the base directory if needed and checks it is writable.
func New(cfg Config) (*IconStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &IconStore{baseDir: cfg.BaseDir}, nil
}

// Open returns the icon file for packageID.
func (s *IconStore) Open(_ context.Context, packageID string) (io.ReadCloser, error) {
	path, err := s.path(packageID)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to baseDir by s.path.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("open icon: %w", err)
	}
	return f, nil
}

// Put writes the icon for packageID, replacing any previous one.
func (s *IconStore) Put(_ context.Context, packageID string, r io.Reader) error {
	path, err := s.path(packageID)
	if err != nil {
		return err
	}
	byteData, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read data from reader: %w", err)
	}
	if err := os.WriteFile(path, byteData, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func (s *IconStore) path(packageID string) (string, error) {
	if strings.TrimSpace(packageID) == "" {
		return "", fmt.Errorf("package_id is required")
	}
	fullPath := filepath.Join(s.baseDir, packageID+".png")

	cleanBaseDir := filepath.Clean(s.baseDir)
	cleanFullPath := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFullPath, cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return cleanFullPath, nil
}
