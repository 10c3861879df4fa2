package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Minute)
	for i, cmd := range []string{"ls -la", "git status", "vim main.go"} {
		require.NoError(t, s.Record(Entry{
			SessionID: "s1",
			Command:   cmd,
			Category:  "oneShot",
			Status:    "completed",
			StartedAt: base.Add(time.Duration(i) * time.Second),
			Duration:  250 * time.Millisecond,
		}))
	}

	entries, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first
	assert.Equal(t, "vim main.go", entries[0].Command)
	assert.Equal(t, "ls -la", entries[2].Command)
	assert.Equal(t, 250*time.Millisecond, entries[0].Duration)
}

func TestRecent_Limit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(Entry{
			SessionID: "s1", Command: "echo", Category: "oneShot",
			Status: "completed", StartedAt: time.Now(),
		}))
	}
	entries, err := s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSearch_FuzzyMatch(t *testing.T) {
	s := openTestStore(t)
	commands := []string{
		"git status",
		"git push origin main",
		"docker compose up",
		"ls -la",
	}
	for i, cmd := range commands {
		require.NoError(t, s.Record(Entry{
			SessionID: "s1", Command: cmd, Category: "oneShot",
			Status: "completed", StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	matches, err := s.Search("gitpsh", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "git push origin main", matches[0].Entry.Command)
	assert.NotEmpty(t, matches[0].MatchedIndexes)
}

func TestSearch_EmptyQueryReturnsRecent(t *testing.T) {
	s := openTestStore(t)
	for i, cmd := range []string{"first", "second", "third"} {
		require.NoError(t, s.Record(Entry{
			SessionID: "s1", Command: cmd, Category: "oneShot",
			Status: "completed", StartedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	matches, err := s.Search("", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "third", matches[0].Entry.Command)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Record(Entry{Command: "x"}))
	entries, err := s.Recent(5)
	assert.NoError(t, err)
	assert.Nil(t, entries)
	matches, err := s.Search("x", 5)
	assert.NoError(t, err)
	assert.Nil(t, matches)
	assert.NoError(t, s.Close())
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(Entry{
		SessionID: "s1", Command: "persisted", Category: "oneShot",
		Status: "completed", StartedAt: time.Now(),
	}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	entries, err := s2.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Command)
}
