package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepgrid/gpu-bootstrap/internal/status"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestFetchAll(t *testing.T) {
	payloadA := []byte("weights shard one")
	payloadB := []byte("weights shard two")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.gguf":
			w.Write(payloadA)
		case "/b.gguf":
			w.Write(payloadB)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	destDir := t.TempDir()
	tracker := status.NewTracker("run-1", "dev")
	d := NewDownloader(destDir, tracker, testLogger())

	files := []File{
		{Name: "a.gguf", URL: srv.URL + "/a.gguf", SHA256: sum(payloadA), SizeBytes: int64(len(payloadA))},
		{Name: "b.gguf", URL: srv.URL + "/b.gguf"},
	}
	require.NoError(t, d.FetchAll(context.Background(), files))

	got, err := os.ReadFile(filepath.Join(destDir, "a.gguf"))
	require.NoError(t, err)
	assert.Equal(t, payloadA, got)

	got, err = os.ReadFile(filepath.Join(destDir, "b.gguf"))
	require.NoError(t, err)
	assert.Equal(t, payloadB, got)

	// No partial files left behind.
	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	snap := tracker.Snapshot()
	require.Len(t, snap.Files, 2)
	assert.True(t, snap.Files[0].Finished)
	assert.Equal(t, int64(len(payloadA)), snap.Files[0].DoneBytes)
}

func TestFetchAllAbortsOnFirstFailure(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), status.NewTracker("run-1", "dev"), testLogger())

	files := []File{
		{Name: "a.gguf", URL: srv.URL + "/a.gguf"},
		{Name: "b.gguf", URL: srv.URL + "/b.gguf"},
	}
	err := d.FetchAll(context.Background(), files)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.gguf")

	// The second file was never requested.
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestFetchChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	d := NewDownloader(destDir, status.NewTracker("run-1", "dev"), testLogger())

	err := d.FetchAll(context.Background(), []File{
		{Name: "a.gguf", URL: srv.URL + "/a.gguf", SHA256: sum([]byte("pristine"))},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha256 mismatch")

	// The final file must not exist after a failed verification.
	_, err = os.Stat(filepath.Join(destDir, "a.gguf"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchSizeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short"))
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), status.NewTracker("run-1", "dev"), testLogger())

	err := d.FetchAll(context.Background(), []File{
		{Name: "a.gguf", URL: srv.URL + "/a.gguf", SizeBytes: 4096},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
}

func TestFetchSkipsPresentFile(t *testing.T) {
	payload := []byte("already here")

	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write(payload)
	}))
	defer srv.Close()

	destDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "a.gguf"), payload, 0o644))

	d := NewDownloader(destDir, status.NewTracker("run-1", "dev"), testLogger())

	err := d.FetchAll(context.Background(), []File{
		{Name: "a.gguf", URL: srv.URL + "/a.gguf", SHA256: sum(payload), SizeBytes: int64(len(payload))},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&requests))
}
