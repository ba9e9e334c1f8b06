package pdfingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Downloader fetches PDFs into a local cache directory. A file that already
// exists on disk is never re-downloaded, which makes interrupted runs cheap
// to repeat.
type Downloader struct {
	client *http.Client
	dir    string
	logger *zap.Logger
}

// NewDownloader creates a downloader writing into dir.
func NewDownloader(dir string, timeout time.Duration, logger *zap.Logger) *Downloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		dir:    dir,
		logger: logger,
	}
}

// Fetch returns the local path and size of the PDF at rawURL, downloading it
// only when the cache misses.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, int64, error) {
	local := filepath.Join(d.dir, localName(rawURL))

	if info, err := os.Stat(local); err == nil {
		d.logger.Debug("PDF cache hit", zap.String("url", rawURL), zap.String("path", local))
		return local, info.Size(), nil
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create pdf dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	out, err := os.Create(local)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", local, err)
	}
	size, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return "", 0, fmt.Errorf("write %s: %w", local, err)
	}
	return local, size, nil
}

// localName derives a stable file name from the URL: the last path segment
// when it already names a PDF, a hash of the URL otherwise.
func localName(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		base := path.Base(u.Path)
		if strings.HasSuffix(strings.ToLower(base), ".pdf") {
			return base
		}
	}
	sum := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:]) + ".pdf"
}
