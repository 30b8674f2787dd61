package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backhaul-io/backhaul/cmd/courier/ledger"
	"github.com/backhaul-io/backhaul/cmd/courier/upload"
	"github.com/backhaul-io/backhaul/common/logger"
	"github.com/backhaul-io/backhaul/common/stability"
)

var fastStability = stability.Options{
	Interval:    time.Millisecond,
	Consecutive: 2,
	Timeout:     200 * time.Millisecond,
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func newFixture(t *testing.T, uploader Uploader) (*Agent, *ledger.Ledger, string) {
	t.Helper()
	watchDir := t.TempDir()
	led, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)

	a := New("alpha", watchDir, []string{".tar.gz"}, led, uploader, fastStability, testLogger(), nil)
	return a, led, watchDir
}

// scriptedUploader returns canned results per filename.
type scriptedUploader struct {
	results map[string]upload.Result
	sent    []string
}

func (s *scriptedUploader) Send(ctx context.Context, path, stream string) upload.Result {
	name := filepath.Base(path)
	s.sent = append(s.sent, name)
	if res, ok := s.results[name]; ok {
		return res
	}
	return upload.Result{Outcome: upload.Delivered, Message: "OK"}
}

func writeArtifact(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("archive"), 0o644))
}

func TestRunCycleDeliversNewArtifacts(t *testing.T) {
	uploader := &scriptedUploader{}
	a, led, watchDir := newFixture(t, uploader)

	writeArtifact(t, watchDir, "b.tar.gz")
	writeArtifact(t, watchDir, "a.tar.gz")
	writeArtifact(t, watchDir, "notes.txt") // not a backup

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Uploaded)
	assert.Zero(t, report.Failed)
	assert.NotEmpty(t, report.CycleID)

	// Deterministic processing order
	assert.Equal(t, []string{"a.tar.gz", "b.tar.gz"}, uploader.sent)
	assert.Empty(t, led.UnsentNames())
}

func TestRunCycleOneFailureDoesNotAbortCycle(t *testing.T) {
	uploader := &scriptedUploader{
		results: map[string]upload.Result{
			"a.tar.gz": {Outcome: upload.Unreachable},
		},
	}
	a, led, watchDir := newFixture(t, uploader)

	writeArtifact(t, watchDir, "a.tar.gz")
	writeArtifact(t, watchDir, "b.tar.gz")

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Uploaded)

	// The failed artifact stays unsent for the next cycle
	assert.Equal(t, []string{"a.tar.gz"}, led.UnsentNames())

	// Next cycle retries only the unsent one
	uploader.results = nil
	uploader.sent = nil
	report, err = a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.tar.gz"}, uploader.sent)
	assert.Equal(t, 1, report.Uploaded)
	assert.Empty(t, led.UnsentNames())
}

func TestRunCycleSkipsUnstableArtifact(t *testing.T) {
	uploader := &scriptedUploader{}
	watchDir := t.TempDir()
	led, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)

	// Sample every 5ms while the writer appends every 1ms, so consecutive
	// samples always observe different sizes until the writer stops
	a := New("alpha", watchDir, []string{".tar.gz"}, led, uploader, stability.Options{
		Interval:    5 * time.Millisecond,
		Consecutive: 3,
		Timeout:     100 * time.Millisecond,
	}, testLogger(), nil)

	path := filepath.Join(watchDir, "growing.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		for {
			select {
			case <-stop:
				return
			default:
				f.Write([]byte("x"))
				time.Sleep(time.Millisecond)
			}
		}
	}()

	report, runErr := a.RunCycle(context.Background())
	close(stop)
	<-done
	require.NoError(t, runErr)

	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Uploaded)
	assert.Empty(t, uploader.sent)

	// Still unsent, retried once it settles
	assert.Equal(t, []string{"growing.tar.gz"}, led.UnsentNames())

	report, err = a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Empty(t, led.UnsentNames())
}

func TestRunCycleDropsVanishedArtifacts(t *testing.T) {
	uploader := &scriptedUploader{}
	a, led, _ := newFixture(t, uploader)

	require.NoError(t, led.Record("gone.tar.gz"))

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Dropped)
	assert.Zero(t, led.Len())
	assert.Empty(t, uploader.sent)
}

func TestRunCycleMissingWatchDirFails(t *testing.T) {
	uploader := &scriptedUploader{}
	led, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)

	a := New("alpha", filepath.Join(t.TempDir(), "missing"), []string{".tar.gz"}, led, uploader, fastStability, testLogger(), nil)

	_, err = a.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycleAgainstRealUploader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alpha", r.FormValue("stream"))
		w.Write([]byte(`{"status":"success","message":"OK"}`))
	}))
	defer srv.Close()

	watchDir := t.TempDir()
	led, err := ledger.Load(filepath.Join(t.TempDir(), "ledger.csv"))
	require.NoError(t, err)

	uploader := upload.New(srv.URL, time.Minute, testLogger())
	a := New("alpha", watchDir, []string{".tar.gz"}, led, uploader, fastStability, testLogger(), nil)

	writeArtifact(t, watchDir, "world.tar.gz")

	report, err := a.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	sent, tracked := led.IsSent("world.tar.gz")
	assert.True(t, tracked)
	assert.True(t, sent)
}
