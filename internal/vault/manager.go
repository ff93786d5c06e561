// Package vault implements the filesystem layout, filename derivation,
// and note I/O of spec.md §4.3/§6. It is the C3 component.
package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"secondbrain/internal/config"
	"secondbrain/internal/logging"
)

var log = logging.Get(logging.CategoryVault)

// Manager roots all vault operations at cfg.Vault.RootPath.
type Manager struct {
	root               string
	systemFolders      []string
	contentTypeFolders map[string][]string
}

// NewManager builds a Manager from vault configuration.
func NewManager(cfg config.VaultConfig) *Manager {
	return &Manager{
		root:               cfg.RootPath,
		systemFolders:      cfg.SystemFolders,
		contentTypeFolders: cfg.ContentTypeFolders,
	}
}

// Root returns the vault's root directory.
func (m *Manager) Root() string { return m.root }

// EnsureStructure idempotently creates every configured folder. Existing
// directories are left untouched (spec.md §4.3).
func (m *Manager) EnsureStructure() error {
	dirs := append([]string{}, m.systemFolders...)
	for _, folders := range m.contentTypeFolders {
		dirs = append(dirs, folders...)
	}
	for _, d := range dirs {
		full := filepath.Join(m.root, d)
		if err := os.MkdirAll(full, 0o755); err != nil {
			return fmt.Errorf("vault: ensure structure %s: %w", full, err)
		}
	}
	return nil
}

// pathExists is the default existence check UniquePath uses.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetUniquePath derives a non-colliding path under dir (relative to the
// vault root) for a title, sanitizing the filename and suffixing "_N"
// on collision. The returned path is relative, suitable for passing
// straight to WriteNote/ReadNote/AbsPath.
func (m *Manager) GetUniquePath(dir, title, ext string) string {
	base := SanitizeFilename(title)
	absDir := filepath.Join(m.root, dir)
	absPath := UniquePath(absDir, base, ext, pathExists)
	rel, err := filepath.Rel(m.root, absPath)
	if err != nil {
		return filepath.Join(dir, base+ext)
	}
	return rel
}

// WriteNote writes content to path (relative to the vault root),
// creating parent directories and overwriting any existing file.
func (m *Manager) WriteNote(relPath, content string) error {
	full := filepath.Join(m.root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("vault: create parent dirs for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("vault: write %s: %w", relPath, err)
	}
	log.Debug("wrote note %s (%d bytes)", relPath, len(content))
	return nil
}

// ReadNote reads a note's raw content by path relative to the vault root.
func (m *Manager) ReadNote(relPath string) (string, error) {
	full := filepath.Join(m.root, relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("vault: read %s: %w", relPath, err)
	}
	return string(data), nil
}

// AbsPath resolves a vault-relative path to an absolute filesystem path.
func (m *Manager) AbsPath(relPath string) string {
	return filepath.Join(m.root, relPath)
}
