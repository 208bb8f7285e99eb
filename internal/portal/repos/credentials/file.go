package credentials

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

// document is the on-disk layout of the JSON file store.
type document struct {
	Saved []record `json:"saved"`
}

// fileStore implements Store over a single JSON file. Writes go to a
// temporary file in the same directory and are renamed into place.
type fileStore struct {
	path  string
	clock clock.Clock
}

// NewFileStore returns a Store backed by the JSON file at path. The file is
// created on the first Save.
func NewFileStore(path string, clk clock.Clock) Store {
	return &fileStore{path: path, clock: clk}
}

// Load returns the saved networks. A missing file yields no networks.
func (s *fileStore) Load() ([]domain.Network, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []domain.Network
	for _, r := range doc.Saved {
		out = append(out, r.network())
	}
	return out, nil
}

func (s *fileStore) Save(n domain.Network) error {
	if err := n.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(document{Saved: []record{newRecord(n, s.clock)}})
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func (s *fileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o600); err != nil {
		return err
	}
	return os.Rename(name, path)
}

var _ Store = (*fileStore)(nil)
