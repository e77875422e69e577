package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/deepgrid/gpu-bootstrap/internal/status"
)

// Downloader fetches model files sequentially into a destination
// directory. The first failure aborts the remaining list.
type Downloader struct {
	destDir string
	http    *http.Client
	tracker *status.Tracker
	logger  *slog.Logger
}

// NewDownloader creates a downloader writing into destDir.
func NewDownloader(destDir string, tracker *status.Tracker, logger *slog.Logger) *Downloader {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // suppress default logging

	return &Downloader{
		destDir: destDir,
		http:    retryClient.StandardClient(),
		tracker: tracker,
		logger:  logger,
	}
}

// FetchAll downloads every file in order, stopping at the first error.
func (d *Downloader) FetchAll(ctx context.Context, files []File) error {
	if err := os.MkdirAll(d.destDir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	for _, f := range files {
		if err := d.fetch(ctx, f); err != nil {
			return fmt.Errorf("fetch %s: %w", f.Name, err)
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, f File) error {
	dest := filepath.Join(d.destDir, f.Name)

	if d.alreadyPresent(dest, f) {
		d.logger.Info("model file already present, skipping", "file", f.Name)
		d.tracker.StartFile(f.Name, f.SizeBytes)
		d.tracker.FinishFile(f.Name)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("http get %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http get %s returned %d", f.URL, resp.StatusCode)
	}

	total := f.SizeBytes
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}
	d.tracker.StartFile(f.Name, total)
	d.logger.Info("downloading model file", "file", f.Name, "bytes", total)

	written, digest, err := d.writePartial(dest, f.Name, resp.Body)
	if err != nil {
		return err
	}

	if f.SizeBytes > 0 && written != f.SizeBytes {
		return fmt.Errorf("size mismatch: got %d bytes, want %d", written, f.SizeBytes)
	}
	if f.SHA256 != "" && digest != f.SHA256 {
		return fmt.Errorf("sha256 mismatch: got %s, want %s", digest, f.SHA256)
	}

	if err := os.Rename(dest+".partial", dest); err != nil {
		return fmt.Errorf("finalize download: %w", err)
	}

	d.tracker.FinishFile(f.Name)
	d.logger.Info("model file downloaded", "file", f.Name, "bytes", written)
	return nil
}

// writePartial streams body into <dest>.partial, hashing as it copies.
func (d *Downloader) writePartial(dest, name string, body io.Reader) (int64, string, error) {
	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, "", fmt.Errorf("create %s: %w", tmp, err)
	}

	hasher := sha256.New()
	counting := &countingWriter{tracker: d.tracker, name: name}
	written, err := io.Copy(io.MultiWriter(out, hasher, counting), body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, "", fmt.Errorf("write %s: %w", tmp, err)
	}

	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// alreadyPresent reports whether dest exists and matches the expected
// size and checksum, making re-runs cheap.
func (d *Downloader) alreadyPresent(dest string, f File) bool {
	info, err := os.Stat(dest)
	if err != nil {
		return false
	}
	if f.SizeBytes > 0 && info.Size() != f.SizeBytes {
		return false
	}
	if f.SHA256 != "" {
		digest, err := fileSHA256(dest)
		if err != nil || digest != f.SHA256 {
			return false
		}
	}
	return true
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

type countingWriter struct {
	tracker *status.Tracker
	name    string
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.tracker.AddBytes(w.name, int64(len(p)))
	return len(p), nil
}
