package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// place writes an artifact directly into the archive with a fixed mtime,
// bypassing ingest, to set up pre-existing resident state.
func place(t *testing.T, dir, name string, size int, mtime time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func residentNames(t *testing.T, dir string) []string {
	t.Helper()
	files, err := listResident(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.name)
	}
	return names
}

func TestEnforceEvictsOldestFirst(t *testing.T) {
	// Artifacts at t1 < t2 < t3 with sizes forcing exactly one eviction:
	// the t1 artifact always goes
	store, dir := newTestStore(t, 250)
	now := time.Now()
	place(t, dir, "t1.tar.gz", 100, now.Add(-3*time.Hour))
	place(t, dir, "t2.tar.gz", 100, now.Add(-2*time.Hour))

	res, err := store.Ingest(context.Background(), "alpha", "t3.tar.gz", strings.NewReader(strings.Repeat("x", 100)))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, []string{"t2.tar.gz", "t3.tar.gz"}, residentNames(t, dir))
}

func TestEnforceStopsOnceUnderBudget(t *testing.T) {
	store, dir := newTestStore(t, 150)
	now := time.Now()
	place(t, dir, "a.tar.gz", 60, now.Add(-4*time.Hour))
	place(t, dir, "b.tar.gz", 60, now.Add(-3*time.Hour))
	place(t, dir, "c.tar.gz", 60, now.Add(-2*time.Hour))

	res, err := store.Ingest(context.Background(), "alpha", "d.tar.gz", strings.NewReader(strings.Repeat("x", 60)))
	require.NoError(t, err)

	// 240 total, budget 150: evict a and b, keep 120
	assert.Equal(t, 2, res.Evicted)
	assert.Equal(t, []string{"c.tar.gz", "d.tar.gz"}, residentNames(t, dir))
}

func TestEnforceEvictsEntrantWhenAloneOverBudget(t *testing.T) {
	// A single artifact larger than the whole budget is evicted right
	// after its own ingest; oldest-first has no special case for the
	// newest write
	store, dir := newTestStore(t, 100)

	res, err := store.Ingest(context.Background(), "alpha", "huge.tar.gz", strings.NewReader(strings.Repeat("x", 500)))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Evicted)
	assert.Empty(t, residentNames(t, dir))

	stats, err := store.Stats("alpha")
	require.NoError(t, err)
	assert.Zero(t, stats["alpha"].BackupCount)
}

func TestEnforceDisabledBudgetKeepsEverything(t *testing.T) {
	// Budget <= 0 disables retention: both artifacts stay resident
	store, dir := newTestStore(t, 0)
	now := time.Now()
	place(t, dir, "t1.tar.gz", 100, now.Add(-2*time.Hour))

	res, err := store.Ingest(context.Background(), "alpha", "t2.tar.gz", strings.NewReader(strings.Repeat("x", 50)))
	require.NoError(t, err)

	assert.Zero(t, res.Evicted)
	assert.ElementsMatch(t, []string{"t1.tar.gz", "t2.tar.gz"}, residentNames(t, dir))
}

func TestEnforceBudget120EvictsOldestRetainsNew(t *testing.T) {
	// 100 units resident at t1, 50-unit ingest at t2, budget 120:
	// the t1 artifact is evicted and the new one retained
	store, dir := newTestStore(t, 120)
	now := time.Now()
	place(t, dir, "t1.tar.gz", 100, now.Add(-2*time.Hour))

	res, err := store.Ingest(context.Background(), "alpha", "t2.tar.gz", strings.NewReader(strings.Repeat("x", 50)))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Evicted)
	assert.Equal(t, []string{"t2.tar.gz"}, residentNames(t, dir))
}

func TestEnforceTieBrokenByName(t *testing.T) {
	// Equal mtimes order by name so eviction is deterministic
	store, dir := newTestStore(t, 150)
	ts := time.Now().Add(-time.Hour)
	place(t, dir, "bbb.tar.gz", 100, ts)
	place(t, dir, "aaa.tar.gz", 100, ts)

	res, err := store.Ingest(context.Background(), "alpha", "ccc.tar.gz", strings.NewReader("x"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Evicted)
	assert.NotContains(t, residentNames(t, dir), "aaa.tar.gz")
	assert.Contains(t, residentNames(t, dir), "bbb.tar.gz")
}

func TestBudgetComplianceAfterArbitraryIngests(t *testing.T) {
	// After any sequence of ingests the stream is within budget, or
	// empty because emptying itself still could not satisfy the policy
	const budget = 300
	store, dir := newTestStore(t, budget)

	sizes := []int{120, 80, 250, 40, 310, 90, 10}
	for i, size := range sizes {
		name := string(rune('a'+i)) + ".tar.gz"
		_, err := store.Ingest(context.Background(), "alpha", name, strings.NewReader(strings.Repeat("x", size)))
		require.NoError(t, err)

		files, err := listResident(dir)
		require.NoError(t, err)
		var total int64
		for _, f := range files {
			total += f.size
		}
		assert.True(t, total <= budget || len(files) == 0,
			"after ingest %d: total %d exceeds budget with %d resident", i, total, len(files))
	}
}
