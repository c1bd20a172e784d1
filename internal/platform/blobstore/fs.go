package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FSBlobStore keeps each blob as two files on an afero filesystem:
// <id>.data with the content and <id>.json with its metadata.
type FSBlobStore struct {
	fs afero.Fs
	mu sync.Mutex
}

// NewFSBlobStore stores blobs at the root of fsys.
func NewFSBlobStore(fsys afero.Fs) *FSBlobStore {
	return &FSBlobStore{fs: fsys}
}

// NewLocalBlobStore stores blobs under dir on the host filesystem, creating
// it when missing.
func NewLocalBlobStore(dir string) (*FSBlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return NewFSBlobStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func dataPath(id string) string { return path.Join("/", id+".data") }
func metaPath(id string) string { return path.Join("/", id+".json") }

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\.`)
}

func (s *FSBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := afero.WriteFile(s.fs, dataPath(meta.ID), data, 0o640); err != nil {
		return nil, fmt.Errorf("write blob content: %w", err)
	}
	if err := s.writeMeta(&meta); err != nil {
		_ = s.fs.Remove(dataPath(meta.ID))
		return nil, err
	}
	out := meta
	return &out, nil
}

func (s *FSBlobStore) writeMeta(meta *BlobMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := afero.WriteFile(s.fs, metaPath(meta.ID), raw, 0o640); err != nil {
		return fmt.Errorf("write blob metadata: %w", err)
	}
	return nil
}

func (s *FSBlobStore) readMeta(id string) (*BlobMetadata, error) {
	if !validID(id) {
		return nil, ErrBlobNotFound
	}
	raw, err := afero.ReadFile(s.fs, metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob metadata: %w", err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode blob metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (s *FSBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.fs.Open(dataPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open blob content: %w", err)
	}
	return f, meta, nil
}

func (s *FSBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(id); err != nil {
		return err
	}
	if err := s.fs.Remove(dataPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob content: %w", err)
	}
	if err := s.fs.Remove(metaPath(id)); err != nil {
		return fmt.Errorf("remove blob metadata: %w", err)
	}
	return nil
}

func (s *FSBlobStore) UpdateDescription(_ context.Context, id, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.readMeta(id)
	if err != nil {
		return err
	}
	meta.Description = description
	return s.writeMeta(meta)
}

// Ping checks that the storage root is reachable.
func (s *FSBlobStore) Ping(_ context.Context) error {
	if _, err := s.fs.Stat("/"); err != nil {
		return fmt.Errorf("blob store unavailable: %w", err)
	}
	return nil
}
