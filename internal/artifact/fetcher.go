// Package artifact materialises the classifier file on local disk.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/example/mri-check/internal/logging"
)

const driveDownloadURL = "https://drive.usercontent.google.com/download?export=download&confirm=t&id="

// DriveURL returns the direct download URL for a publicly shared Google Drive file.
func DriveURL(fileID string) string {
	return driveDownloadURL + url.QueryEscape(fileID)
}

// Fetcher downloads the artifact to Path unless it is already there.
type Fetcher struct {
	url    string
	path   string
	client *http.Client
	logger *zap.Logger
}

// DownloadTimeout bounds a download made with the default client.
const DownloadTimeout = 10 * time.Minute

// NewFetcher constructs a Fetcher. A nil client gets DownloadTimeout.
func NewFetcher(rawURL, path string, client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DownloadTimeout}
	}
	return &Fetcher{url: rawURL, path: path, client: client, logger: logger.Named("artifact")}
}

// Path is where the artifact lives once fetched.
func (f *Fetcher) Path() string {
	return f.path
}

// Ensure makes sure the artifact exists. It is a no-op when the file is already present.
func (f *Fetcher) Ensure(ctx context.Context) error {
	info, err := os.Stat(f.path)
	switch {
	case err == nil && info.Size() > 0:
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return logging.NewOperationError("artifact.stat", "", err)
	}
	if f.url == "" {
		return logging.NewOperationError("artifact.ensure", "", fmt.Errorf("%s is missing and no download url is configured", f.path))
	}

	start := time.Now()
	f.logger.Info("downloading classifier artifact", zap.String("path", f.path))
	n, err := f.download(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("artifact.download", "", err)
		f.logger.Error("artifact download failed", zap.Error(wrapped))
		return wrapped
	}
	f.logger.Info("classifier artifact ready",
		zap.String("path", f.path),
		zap.Int64("bytes", n),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

func (f *Fetcher) download(ctx context.Context) (int64, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir %s: %w", dir, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType == "text/html" {
		return 0, errors.New("server returned an html page instead of the artifact")
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write artifact: %w", err)
	}
	if n == 0 {
		return 0, errors.New("empty artifact")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return 0, fmt.Errorf("move artifact into place: %w", err)
	}
	return n, nil
}
