package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DataStore contract shared by both backends.
type dataStore interface {
	Read(path ...string) ([]byte, error)
	Write(data []byte, path ...string) error
	Delete(path ...string) error
}

func runContract(t *testing.T, s dataStore) {
	t.Helper()
	path := []string{"codegrid", "games.example.com:8080", "alice"}

	// Absent record reads as nil without error.
	data, err := s.Read(path...)
	require.NoError(t, err)
	assert.Nil(t, data)

	record := []byte(`{"game_id":"g1","player_id":"p1","player_secret":"s1"}`)
	require.NoError(t, s.Write(record, path...))

	data, err = s.Read(path...)
	require.NoError(t, err)
	assert.Equal(t, record, data)

	// Overwrite replaces.
	updated := []byte(`{"game_id":"g2"}`)
	require.NoError(t, s.Write(updated, path...))
	data, err = s.Read(path...)
	require.NoError(t, err)
	assert.Equal(t, updated, data)

	// Delete, then read null again; deleting twice is a no-op.
	require.NoError(t, s.Delete(path...))
	data, err = s.Read(path...)
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, s.Delete(path...))
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runContract(t, fs)
}

func TestFileStoreIsolatesRecords(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Write([]byte("a"), "base", "host", "alice"))
	require.NoError(t, fs.Write([]byte("b"), "base", "host", "bob"))

	data, err := fs.Read("base", "host", "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Write([]byte("persisted"), "codegrid", "host", "alice"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	data, err := s.Read("codegrid", "host", "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), data)
}
