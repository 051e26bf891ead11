package backend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/brizzai/diary-auth/internal/auth/models"
	"gopkg.in/yaml.v3"
)

// Storage persists the client's session between runs
type Storage interface {
	// Load returns nil, nil when nothing is stored
	Load() (*models.Session, error)
	Save(session *models.Session) error
	Clear() error
}

// MemoryStorage keeps the session for the process lifetime only
type MemoryStorage struct {
	mu      sync.Mutex
	session *models.Session
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStorage) Save(session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.session = &s
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStorage keeps the session in a YAML file readable only by the owner
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// DefaultSessionFile is used when no session file is configured
func DefaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "diary-auth", "session.yaml")
}

func (f *FileStorage) Load() (*models.Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session models.Session
	if err := yaml.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", f.path, err)
	}
	if session.AccessToken == "" && session.RefreshToken == "" {
		return nil, nil
	}
	return &session, nil
}

func (f *FileStorage) Save(session *models.Session) error {
	data, err := yaml.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
