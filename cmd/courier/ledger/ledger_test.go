package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Load(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)
	return l
}

func TestLoadMissingFileYieldsEmptyLedger(t *testing.T) {
	l := newLedger(t)
	assert.Zero(t, l.Len())
	assert.Empty(t, l.UnsentNames())
}

func TestRecordIsIdempotent(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Record("a.tar.gz"))
	require.NoError(t, l.Record("a.tar.gz"))

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []string{"a.tar.gz"}, l.UnsentNames())
}

func TestRecordDoesNotResetSentState(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Record("a.tar.gz"))
	require.NoError(t, l.MarkSent("a.tar.gz"))
	require.NoError(t, l.Record("a.tar.gz"))

	sent, tracked := l.IsSent("a.tar.gz")
	assert.True(t, tracked)
	assert.True(t, sent)
	assert.Empty(t, l.UnsentNames())
}

func TestMarkSentUntrackedFailsAndMutatesNothing(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record("a.tar.gz"))

	err := l.MarkSent("ghost.tar.gz")
	require.ErrorIs(t, err, ErrNotTracked)

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, []string{"a.tar.gz"}, l.UnsentNames())
}

func TestUnsentNamesIsSortedAndDeterministic(t *testing.T) {
	l := newLedger(t)
	for _, name := range []string{"c.tar", "a.tar", "b.tar"} {
		require.NoError(t, l.Record(name))
	}
	require.NoError(t, l.MarkSent("b.tar"))

	want := []string{"a.tar", "c.tar"}
	assert.Equal(t, want, l.UnsentNames())
	assert.Equal(t, want, l.UnsentNames())
}

func TestPersistenceSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.Record("a.tar.gz"))
	require.NoError(t, l.Record("b.tar.gz"))
	require.NoError(t, l.MarkSent("a.tar.gz"))

	// Simulate a process restart: whatever was persisted is authoritative
	reloaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, reloaded.Len())
	sent, tracked := reloaded.IsSent("a.tar.gz")
	assert.True(t, tracked)
	assert.True(t, sent)
	assert.Equal(t, []string{"b.tar.gz"}, reloaded.UnsentNames())
}

func TestPersistedFormatIsHeaderedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, l.Record("b.tar.gz"))
	require.NoError(t, l.Record("a.tar.gz"))
	require.NoError(t, l.MarkSent("a.tar.gz"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "filename,is_sent", lines[0])
	assert.Equal(t, "a.tar.gz,true", lines[1])
	assert.Equal(t, "b.tar.gz,false", lines[2])
}

func TestRemoveUntrackedIsNoop(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record("a.tar.gz"))
	require.NoError(t, l.Remove("ghost.tar.gz"))
	assert.Equal(t, 1, l.Len())
}

func TestLoadMalformedLedgerFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte("filename,is_sent\nonly-one-column\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
