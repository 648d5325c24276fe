package preference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps all records in a single JSON document, rewritten
// atomically on every write. Suits small deployments where an embedded
// database is overkill.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// OpenFileStore loads (or creates) a file-backed store at path
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		records: make(map[string]Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read preference file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("failed to parse preference file: %w", err)
		}
	}

	return s, nil
}

// Get implements Store
func (s *FileStore) Get(identity string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Set implements Store
func (s *FileStore) Set(identity, key, value string) (Record, error) {
	if key != KeyColor {
		return Record{}, ErrUnsupportedKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[identity]
	rec.Color = value
	rec.LastUpdated = time.Now().UTC()
	s.records[identity] = rec

	if err := s.persist(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close implements Store
func (s *FileStore) Close() error {
	return nil
}

// persist rewrites the whole document through a temp file rename
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".preferences-*")
	if err != nil {
		return fmt.Errorf("failed to create temp preference file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp preference file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace preference file: %w", err)
	}
	return nil
}
