package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/devadigapratham/printfarm/api/models"
)

const snapshotPrefix = "printer-"

// SnapshotStore keeps one JSON record per printer, either as files under a
// directory or in memory when no directory is given.
type SnapshotStore struct {
	mu sync.RWMutex
	// Path to the storage directory
	path string
	// Values kept when not using persistence
	inMemory map[string][]byte
}

// NewSnapshotStore creates a snapshot store
func NewSnapshotStore(path string) (*SnapshotStore, error) {
	if path != "" {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	return &SnapshotStore{
		path:     path,
		inMemory: make(map[string][]byte),
	}, nil
}

func keyFor(id int) string {
	return fmt.Sprintf("%s%d.json", snapshotPrefix, id)
}

// SavePrinters writes a record for every printer
func (s *SnapshotStore) SavePrinters(printers []models.Printer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range printers {
		data, err := json.Marshal(&printers[i])
		if err != nil {
			return fmt.Errorf("failed to marshal printer %d: %w", printers[i].ID, err)
		}
		if err := s.set(keyFor(printers[i].ID), data); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotStore) set(key string, val []byte) error {
	if s.path == "" {
		s.inMemory[key] = val
		return nil
	}

	// Write then rename so a crash never leaves a torn record
	path := filepath.Join(s.path, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, val, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DeletePrinter removes a printer record
func (s *SnapshotStore) DeletePrinter(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyFor(id)
	if s.path == "" {
		delete(s.inMemory, key)
		return nil
	}

	err := os.Remove(filepath.Join(s.path, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadPrinters returns every stored printer ordered by id
func (s *SnapshotStore) LoadPrinters() ([]models.Printer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blobs := make(map[string][]byte)
	if s.path == "" {
		for k, v := range s.inMemory {
			blobs[k] = v
		}
	} else {
		files, err := os.ReadDir(s.path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || filepath.Ext(name) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.path, name))
			if err != nil {
				return nil, err
			}
			blobs[name] = data
		}
	}

	printers := make([]models.Printer, 0, len(blobs))
	for key, data := range blobs {
		var p models.Printer
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", key, err)
		}
		printers = append(printers, p)
	}
	sort.Slice(printers, func(i, j int) bool { return printers[i].ID < printers[j].ID })
	return printers, nil
}
