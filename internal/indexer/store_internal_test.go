package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmasAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	require.NoError(t, err)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	for _, table := range []string{"events", "listings", "grants", "checkpoint"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
	require.NoError(t, s.Close())

	// Reopening an existing index is fine.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	seq, err := s.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestAddDecimal(t *testing.T) {
	got, err := addDecimal("100", nil)
	require.NoError(t, err)
	assert.Equal(t, "100", got)

	_, err = addDecimal("1e3", nil)
	assert.Error(t, err)
}
