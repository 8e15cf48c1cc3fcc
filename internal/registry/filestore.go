package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore persists the registry as a JSON file. Saves write to a temp
// file in the same directory and rename into place, so a crash mid-save
// leaves the previous state intact.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore at path, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads registry records. A missing file is an empty registry, not an
// error.
func (s *FileStore) Load() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing registry file: %w", err)
	}
	return records, nil
}

// Save writes records atomically.
func (s *FileStore) Save(records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing registry temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing registry file: %w", err)
	}
	return nil
}
