package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TokenStore persists credentials between runs.
type TokenStore interface {
	// Load returns the stored credentials, or (nil, nil) when none exist.
	Load() (*Credentials, error)
	Save(creds *Credentials) error
	Delete() error
}

// StoreError wraps a failed store operation with its path.
type StoreError struct {
	Op   string // "read", "write" or "delete"
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("token store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// EnvHome overrides the directory holding auth.json.
const EnvHome = "CODEX_OAUTH_HOME"

// FileStore keeps credentials in a JSON file, written atomically with
// owner-only permissions.
type FileStore struct {
	Path string
}

// NewFileStore returns a store rooted at path, or the default location
// when path is empty: $CODEX_OAUTH_HOME/auth.json if set, otherwise
// ~/.oauth_codex/auth.json.
func NewFileStore(path string) (*FileStore, error) {
	if path != "" {
		return &FileStore{Path: path}, nil
	}
	if home := os.Getenv(EnvHome); home != "" {
		return &FileStore{Path: filepath.Join(home, "auth.json")}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &FileStore{Path: filepath.Join(home, ".oauth_codex", "auth.json")}, nil
}

func (s *FileStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StoreError{Op: "read", Path: s.Path, Err: err}
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &StoreError{Op: "read", Path: s.Path, Err: err}
	}
	return &creds, nil
}

func (s *FileStore) Save(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return &StoreError{Op: "write", Path: s.Path, Err: err}
	}
	if err := WriteFileAtomic(s.Path, data, 0o600); err != nil {
		return &StoreError{Op: "write", Path: s.Path, Err: err}
	}
	return nil
}

func (s *FileStore) Delete() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StoreError{Op: "delete", Path: s.Path, Err: err}
	}
	return nil
}

// WriteFileAtomic writes data to path via a temp file in the same
// directory, fsyncs, sets perm, then renames over the destination so
// readers never observe a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
