// Package compat emulates the hosted files, vector-store and response
// continuity surfaces on local disk, so code written against the
// OpenAI API shape keeps working over the ChatGPT backend, which has
// none of them.
package compat

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/samsaffron/oauth-codex/credentials"
)

// EnvStorageDir overrides the storage directory.
const EnvStorageDir = "CODEX_COMPAT_STORAGE_DIR"

// NotFoundError reports a lookup of an object that does not exist in
// the store.
type NotFoundError struct {
	Kind string // "file", "vector_store", "response"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// StorageError reports a failed read or write of the store's on-disk
// state, wrapping the underlying cause.
type StorageError struct {
	Op   string // "read", "parse", "write"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("compat storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Store is a directory-backed object store. All mutations are
// read-modify-write cycles guarded by a mutex, with atomic file
// replacement underneath.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open returns a store rooted at dir, falling back to
// $CODEX_COMPAT_STORAGE_DIR and then ~/.oauth_codex/compat.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = os.Getenv(EnvStorageDir)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".oauth_codex", "compat")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the storage root.
func (s *Store) Dir() string { return s.dir }

// newID produces ids like file_a1b2... with 24 hex characters.
func newID(prefix string) string {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("compat: reading random bytes: %v", err))
	}
	return prefix + "_" + hex.EncodeToString(raw)
}

// list is the on-disk index shape shared by every object kind.
type list[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func indexPath(dir, kind string) string {
	return filepath.Join(dir, kind, "index.json")
}

// readIndex loads an index, returning an empty list when the file does
// not exist yet.
func readIndex[T any](path string) (*list[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &list[T]{Object: "list"}, nil
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	var idx list[T]
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, &StorageError{Op: "parse", Path: path, Err: err}
	}
	if idx.Object == "" {
		idx.Object = "list"
	}
	return &idx, nil
}

// writeIndex atomically replaces an index file.
func writeIndex[T any](path string, idx *list[T]) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := credentials.WriteFileAtomic(path, data, 0o600); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}
