// Package workspace manages the ephemeral staging directory a package is
// assembled in before being zipped and moved into the destination. Staging
// directories are timestamped and removed completely after use.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/bookbinder/internal/logfields"
)

// Manager handles staging directory operations for one assembly run.
type Manager struct {
	baseDir string
	tempDir string
}

// NewManager creates a staging manager rooted at baseDir. An empty baseDir
// falls back to the system temp directory.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// Create makes a fresh timestamped staging directory.
func (m *Manager) Create() error {
	timestamp := time.Now().Format("20060102-150405")
	tempDir := filepath.Join(m.baseDir, fmt.Sprintf("bookbinder-%s", timestamp))

	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	m.tempDir = tempDir
	slog.Debug("Created staging directory", logfields.Path(tempDir))
	return nil
}

// GetPath returns the path to the staging directory.
func (m *Manager) GetPath() string {
	return m.tempDir
}

// Cleanup removes the staging directory and everything in it.
func (m *Manager) Cleanup() error {
	if m.tempDir == "" {
		return nil
	}

	if err := os.RemoveAll(m.tempDir); err != nil {
		return fmt.Errorf("failed to cleanup staging directory: %w", err)
	}

	slog.Debug("Removed staging directory", logfields.Path(m.tempDir))
	m.tempDir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the staging directory. Nested
// names like "OEBPS/Images" are allowed.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.tempDir == "" {
		return "", fmt.Errorf("staging directory not created")
	}

	subdir := filepath.Join(m.tempDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	return subdir, nil
}

// WriteFile writes a file at a relative path inside the staging directory,
// creating parent directories as needed.
func (m *Manager) WriteFile(relPath string, data []byte) error {
	if m.tempDir == "" {
		return fmt.Errorf("staging directory not created")
	}

	full := filepath.Join(m.tempDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("failed to write staged file: %w", err)
	}
	return nil
}
