package compat

import (
	"time"
)

// FileCounts mirrors the hosted shape. Local attachment is immediate,
// so only completed and total ever move.
type FileCounts struct {
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// VectorStore mirrors the hosted vector store object. UsageBytes and
// FileCounts are derived from the attached files on every mutation
// rather than trusted from disk.
type VectorStore struct {
	ID         string     `json:"id"`
	Object     string     `json:"object"`
	Name       string     `json:"name"`
	CreatedAt  int64      `json:"created_at"`
	FileIDs    []string   `json:"file_ids"`
	UsageBytes int64      `json:"usage_bytes"`
	FileCounts FileCounts `json:"file_counts"`
	Status     string     `json:"status"`
}

func (s *Store) vectorStoresIndexPath() string {
	return indexPath(s.dir, "vector_stores")
}

// deriveLocked recomputes usage and counts from the file index.
func (s *Store) deriveLocked(vs *VectorStore) error {
	fileIdx, err := readIndex[File](s.filesIndexPath())
	if err != nil {
		return err
	}
	sizes := make(map[string]int64, len(fileIdx.Data))
	for _, f := range fileIdx.Data {
		sizes[f.ID] = f.Bytes
	}
	var usage int64
	completed := 0
	for _, id := range vs.FileIDs {
		if bytes, ok := sizes[id]; ok {
			usage += bytes
			completed++
		}
	}
	vs.UsageBytes = usage
	vs.FileCounts = FileCounts{Completed: completed, Total: completed}
	return nil
}

// CreateVectorStore creates a store over the given file ids.
func (s *Store) CreateVectorStore(name string, fileIDs []string) (*VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range fileIDs {
		if _, err := s.getFileLocked(id); err != nil {
			return nil, err
		}
	}

	idx, err := readIndex[VectorStore](s.vectorStoresIndexPath())
	if err != nil {
		return nil, err
	}
	vs := VectorStore{
		ID:        newID("vs"),
		Object:    "vector_store",
		Name:      name,
		CreatedAt: time.Now().Unix(),
		FileIDs:   append([]string(nil), fileIDs...),
		Status:    "completed",
	}
	if err := s.deriveLocked(&vs); err != nil {
		return nil, err
	}
	idx.Data = append(idx.Data, vs)
	if err := writeIndex(s.vectorStoresIndexPath(), idx); err != nil {
		return nil, err
	}
	return &vs, nil
}

// RetrieveVectorStore returns the store for id with freshly derived
// usage numbers.
func (s *Store) RetrieveVectorStore(id string) (*VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retrieveVectorStoreLocked(id)
}

func (s *Store) retrieveVectorStoreLocked(id string) (*VectorStore, error) {
	idx, err := readIndex[VectorStore](s.vectorStoresIndexPath())
	if err != nil {
		return nil, err
	}
	for i := range idx.Data {
		if idx.Data[i].ID == id {
			vs := idx.Data[i]
			if err := s.deriveLocked(&vs); err != nil {
				return nil, err
			}
			return &vs, nil
		}
	}
	return nil, &NotFoundError{Kind: "vector_store", ID: id}
}

// ListVectorStores returns every store with derived usage numbers.
func (s *Store) ListVectorStores() ([]VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[VectorStore](s.vectorStoresIndexPath())
	if err != nil {
		return nil, err
	}
	out := make([]VectorStore, len(idx.Data))
	for i := range idx.Data {
		vs := idx.Data[i]
		if err := s.deriveLocked(&vs); err != nil {
			return nil, err
		}
		out[i] = vs
	}
	return out, nil
}

// VectorStoreUpdate holds the mutable fields of a vector store. Nil
// fields are left untouched.
type VectorStoreUpdate struct {
	Name    *string
	FileIDs *[]string
}

// UpdateVectorStore applies update to id.
func (s *Store) UpdateVectorStore(id string, update VectorStoreUpdate) (*VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update.FileIDs != nil {
		for _, fid := range *update.FileIDs {
			if _, err := s.getFileLocked(fid); err != nil {
				return nil, err
			}
		}
	}

	idx, err := readIndex[VectorStore](s.vectorStoresIndexPath())
	if err != nil {
		return nil, err
	}
	for i := range idx.Data {
		if idx.Data[i].ID != id {
			continue
		}
		if update.Name != nil {
			idx.Data[i].Name = *update.Name
		}
		if update.FileIDs != nil {
			idx.Data[i].FileIDs = append([]string(nil), (*update.FileIDs)...)
		}
		if err := s.deriveLocked(&idx.Data[i]); err != nil {
			return nil, err
		}
		if err := writeIndex(s.vectorStoresIndexPath(), idx); err != nil {
			return nil, err
		}
		vs := idx.Data[i]
		return &vs, nil
	}
	return nil, &NotFoundError{Kind: "vector_store", ID: id}
}

// DeleteVectorStore removes the store. Attached files are left alone:
// they may belong to other stores.
func (s *Store) DeleteVectorStore(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := readIndex[VectorStore](s.vectorStoresIndexPath())
	if err != nil {
		return err
	}
	for i := range idx.Data {
		if idx.Data[i].ID == id {
			idx.Data = append(idx.Data[:i], idx.Data[i+1:]...)
			return writeIndex(s.vectorStoresIndexPath(), idx)
		}
	}
	return &NotFoundError{Kind: "vector_store", ID: id}
}
