package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-portal/internal/portal/common/clock"
	"github.com/haukened/rr-portal/internal/portal/domain"
)

var savedAt = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func testClock() clock.Clock { return &clock.MockClock{CurrentTime: savedAt} }

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	bs, err := NewBoltStore(filepath.Join(dir, "networks.db"), testClock())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return map[string]Store{
		KindBolt: bs,
		KindFile: NewFileStore(filepath.Join(dir, "networks.json"), testClock()),
	}
}

func TestStore_EmptyLoad(t *testing.T) {
	for kind, st := range openStores(t) {
		t.Run(kind, func(t *testing.T) {
			got, err := st.Load()
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStore_SaveReplacesPrevious(t *testing.T) {
	for kind, st := range openStores(t) {
		t.Run(kind, func(t *testing.T) {
			require.NoError(t, st.Save(domain.Network{SSID: "Home", Password: "secret"}))
			got, err := st.Load()
			require.NoError(t, err)
			assert.Equal(t, []domain.Network{{SSID: "Home", Password: "secret"}}, got)

			require.NoError(t, st.Save(domain.Network{SSID: "Office"}))
			got, err = st.Load()
			require.NoError(t, err)
			assert.Equal(t, []domain.Network{{SSID: "Office"}}, got)
		})
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	for kind, st := range openStores(t) {
		t.Run(kind, func(t *testing.T) {
			assert.ErrorIs(t, st.Save(domain.Network{}), domain.ErrMissingSSID)
			got, err := st.Load()
			require.NoError(t, err)
			assert.Empty(t, got, "nothing persisted on validation failure")
		})
	}
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.db")
	st, err := NewBoltStore(path, testClock())
	require.NoError(t, err)
	require.NoError(t, st.Save(domain.Network{SSID: "Home", Password: "pw"}))
	require.NoError(t, st.Close())

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	var r record
	require.NoError(t, db.View(func(tx *bbolt.Tx) error {
		return json.Unmarshal(tx.Bucket(bucketNetworks).Get([]byte("Home")), &r)
	}))
	require.NoError(t, db.Close())
	assert.Equal(t, savedAt, r.SavedAt)

	st, err = NewBoltStore(path, testClock())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, []domain.Network{{SSID: "Home", Password: "pw"}}, got)
}

func TestBoltStore_CorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.db")
	st, err := NewBoltStore(path, testClock())
	require.NoError(t, err)
	defer st.Close()

	bs := st.(*boltStore)
	require.NoError(t, bs.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketNetworks).Put([]byte("bad"), []byte("{"))
	}))
	_, err = st.Load()
	assert.ErrorContains(t, err, `decode network "bad"`)
}

func TestNewBoltStore_OpenError(t *testing.T) {
	st, err := NewBoltStore(filepath.Join(t.TempDir(), "missing", "networks.db"), testClock())
	assert.Error(t, err)
	assert.Nil(t, st)
}

func TestFileStore_Layout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.json")
	st := NewFileStore(path, testClock())
	require.NoError(t, st.Save(domain.Network{SSID: "Home", Password: "secret"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"saved":[{"ssid":"Home","password":"secret","saved_at":"2025-08-01T12:00:00Z"}]}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file removed after rename")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	_, err := NewFileStore(path, testClock()).Load()
	assert.Error(t, err)
}

func TestFileStore_SaveIntoMissingDir(t *testing.T) {
	st := NewFileStore(filepath.Join(t.TempDir(), "missing", "networks.json"), testClock())
	assert.Error(t, st.Save(domain.Network{SSID: "Home"}))
	assert.NoError(t, st.Close())
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(KindBolt, filepath.Join(dir, "a", "networks.db"), testClock())
	require.NoError(t, err)
	assert.IsType(t, &boltStore{}, st)
	require.NoError(t, st.Close())

	st, err = Open(KindFile, filepath.Join(dir, "b", "networks.json"), testClock())
	require.NoError(t, err)
	assert.IsType(t, &fileStore{}, st)

	_, err = Open("sqlite", filepath.Join(dir, "c", "x"), testClock())
	assert.ErrorIs(t, err, ErrUnknownKind)
}
