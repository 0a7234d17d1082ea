package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

// ErrDownloadTimeout marks a document that kept timing out after all
// retry attempts. Callers record the unavailability sentinel for it.
var ErrDownloadTimeout = errors.New("document download timed out")

// Downloader fetches ruling documents into uniquely named temp files
type Downloader struct {
	client     *http.Client
	tempDir    string
	userAgent  string
	maxRetries int
	log        *logger.Logger
}

func NewDownloader(cfg *config.Config, log *logger.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: cfg.DownloadTimeout,
		},
		tempDir:    cfg.TempDir,
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.DownloadMaxRetries,
		log:        log,
	}
}

// Fetch downloads a ruling document and returns the temp file path.
// Timeouts are retried with exponential backoff and jitter; any other
// failure aborts immediately. Concurrent fetches never collide because
// each attempt writes to a unique file name.
func (d *Downloader) Fetch(ctx context.Context, docID, url string) (string, error) {
	if err := os.MkdirAll(d.tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		path, err := d.fetchOnce(ctx, docID, url)
		if err == nil {
			return path, nil
		}
		lastErr = err

		if !isTimeout(err) {
			return "", fmt.Errorf("failed to download document %s: %w", docID, err)
		}

		if attempt < d.maxRetries {
			delay := backoffDelay(attempt)
			d.log.Warn("document download timed out, retrying",
				"doc_id", docID,
				"attempt", attempt,
				"retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	d.log.Error("document download failed after all attempts",
		"doc_id", docID,
		"attempts", d.maxRetries,
		"error", lastErr)
	return "", fmt.Errorf("%w after %d attempts", ErrDownloadTimeout, d.maxRetries)
}

func (d *Downloader) fetchOnce(ctx context.Context, docID, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(d.tempDir, tempFileName(docID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// tempFileName builds a name unique per download attempt
func tempFileName(docID string) string {
	return fmt.Sprintf("document_%s_%s.rtf", docID, uuid.NewString()[:8])
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func backoffDelay(attempt int) time.Duration {
	base := time.Second * time.Duration(1<<uint(attempt-1))
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
	return base + jitter
}
