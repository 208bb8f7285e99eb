// Package credentials persists the Wi-Fi network submitted through the
// portal. Saving replaces the previously saved network.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

var ErrUnknownKind = errors.New("unknown credential store kind")

const (
	KindBolt = "bolt"
	KindFile = "file"
)

// Store loads and saves provisioned networks.
type Store interface {
	Load() ([]domain.Network, error)
	Save(n domain.Network) error
	Close() error
}

// record is the persisted form of a saved network.
type record struct {
	SSID     string    `json:"ssid"`
	Password string    `json:"password"`
	SavedAt  time.Time `json:"saved_at"`
}

func newRecord(n domain.Network, clk clock.Clock) record {
	return record{SSID: n.SSID, Password: n.Password, SavedAt: clk.Now().UTC()}
}

func (r record) network() domain.Network {
	return domain.Network{SSID: r.SSID, Password: r.Password}
}

// Open creates the parent directory of path and opens a store of the given
// kind.
func Open(kind, path string, clk clock.Clock) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	switch kind {
	case KindBolt:
		return NewBoltStore(path, clk)
	case KindFile:
		return NewFileStore(path, clk), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
