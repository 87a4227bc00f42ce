// Package download fetches raw forecast files into cycle directories.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/i474232898/atmostream/internal/forecast"
)

// Getter issues a GET request. The resilient catalog client satisfies it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Manager downloads the files of a cycle that are not yet on disk.
// Files are identified by basename only.
type Manager struct {
	log    *slog.Logger
	getter Getter
}

func NewManager(log *slog.Logger, getter Getter) *Manager {
	return &Manager{log: log, getter: getter}
}

// Basename returns the last path element of a file URL, ignoring any query.
func Basename(fileURL string) string {
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(fileURL)
}

// Missing returns the files of files whose basename is not a regular file
// in dir, in order. A dir that does not exist yet means every file is
// missing.
func (m *Manager) Missing(files []string, dir string) ([]string, error) {
	var missing []string
	for _, f := range files {
		info, err := os.Stat(filepath.Join(dir, Basename(f)))
		switch {
		case err == nil:
			if !info.Mode().IsRegular() {
				missing = append(missing, f)
			}
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, f)
		default:
			return nil, fmt.Errorf("%w: stat %s: %w", forecast.ErrDownloadFailure, f, err)
		}
	}
	return missing, nil
}

// FetchMissing downloads every missing file of files into dir, one after
// another, and returns how many were written.
func (m *Manager) FetchMissing(ctx context.Context, files []string, dir string) (int, error) {
	missing, err := m.Missing(files, dir)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %w", forecast.ErrDownloadFailure, dir, err)
	}

	var fetched int
	for _, f := range missing {
		if err := m.fetch(ctx, f, filepath.Join(dir, Basename(f))); err != nil {
			if errors.Is(err, context.Canceled) {
				return fetched, err
			}
			return fetched, fmt.Errorf("%w: %s: %w", forecast.ErrDownloadFailure, f, err)
		}
		fetched++
		m.log.Debug("download: fetched file", "file", Basename(f), "dir", dir)
	}
	return fetched, nil
}

func (m *Manager) fetch(ctx context.Context, fileURL, dest string) error {
	resp, err := m.getter.Get(ctx, fileURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}
