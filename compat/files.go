package compat

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File mirrors the hosted file object.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status"`
}

func (s *Store) filesIndexPath() string {
	return indexPath(s.dir, "files")
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.dir, "files", "blobs", id+".bin")
}

// CreateFile stores content under a fresh file id. Local files never
// go through a processing queue, so they are born "processed".
func (s *Store) CreateFile(filename string, content []byte, purpose string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[File](s.filesIndexPath())
	if err != nil {
		return nil, err
	}

	file := File{
		ID:        newID("file"),
		Object:    "file",
		Bytes:     int64(len(content)),
		CreatedAt: time.Now().Unix(),
		Filename:  filename,
		Purpose:   purpose,
		Status:    "processed",
	}
	if err := writeBlob(s.blobPath(file.ID), content); err != nil {
		return nil, err
	}
	idx.Data = append(idx.Data, file)
	if err := writeIndex(s.filesIndexPath(), idx); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFile returns the metadata for id.
func (s *Store) GetFile(id string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getFileLocked(id)
}

func (s *Store) getFileLocked(id string) (*File, error) {
	idx, err := readIndex[File](s.filesIndexPath())
	if err != nil {
		return nil, err
	}
	for i := range idx.Data {
		if idx.Data[i].ID == id {
			return &idx.Data[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "file", ID: id}
}

// FileContent returns the stored bytes for id.
func (s *Store) FileContent(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getFileLocked(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		return nil, &StorageError{Op: "read", Path: s.blobPath(id), Err: err}
	}
	return data, nil
}

// FileDeleted is the result of a delete call, mirroring the hosted
// deletion object.
type FileDeleted struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

// DeleteFile removes the index entry and blob for id. Deleting an
// unknown id is not an error; Deleted reports whether anything was
// removed, so a second delete of the same id reports false.
func (s *Store) DeleteFile(id string) (*FileDeleted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[File](s.filesIndexPath())
	if err != nil {
		return nil, err
	}
	kept := make([]File, 0, len(idx.Data))
	found := false
	for _, f := range idx.Data {
		if f.ID == id {
			found = true
			continue
		}
		kept = append(kept, f)
	}
	if found {
		idx.Data = kept
		if err := writeIndex(s.filesIndexPath(), idx); err != nil {
			return nil, err
		}
	}
	if err := os.Remove(s.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return nil, &StorageError{Op: "write", Path: s.blobPath(id), Err: err}
	}
	return &FileDeleted{ID: id, Object: "file.deleted", Deleted: found}, nil
}

// ListFiles returns all stored files.
func (s *Store) ListFiles() ([]File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[File](s.filesIndexPath())
	if err != nil {
		return nil, err
	}
	return idx.Data, nil
}

func writeBlob(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create blob directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return fmt.Errorf("create blob temp: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	if err := os.Chmod(name, 0o600); err != nil {
		return fmt.Errorf("chmod blob: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("rename blob: %w", err)
	}
	return nil
}
