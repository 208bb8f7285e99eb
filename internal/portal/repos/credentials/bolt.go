package credentials

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

var bucketNetworks = []byte("networks")

// boltStore implements Store using bbolt. Records are keyed by SSID.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// NewBoltStore opens (or creates) a Bolt database at path and ensures the
// networks bucket exists.
func NewBoltStore(path string, clk clock.Clock) (Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketNetworks)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, clock: clk}, nil
}

// Load returns saved networks ordered by SSID.
func (s *boltStore) Load() ([]domain.Network, error) {
	var out []domain.Network
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketNetworks)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode network %q: %w", k, err)
			}
			out = append(out, r.network())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Save validates n and replaces the bucket contents with it in one
// transaction.
func (s *boltStore) Save(n domain.Network) error {
	if err := n.Validate(); err != nil {
		return err
	}
	val, err := json.Marshal(newRecord(n, s.clock))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketNetworks) != nil {
			if err := tx.DeleteBucket(bucketNetworks); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketNetworks)
		if err != nil {
			return err
		}
		return b.Put([]byte(n.SSID), val)
	})
}

func (s *boltStore) Close() error { return s.db.Close() }

var _ Store = (*boltStore)(nil)
