package document

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/juristech/process-extract/internal/model"
)

// TempStore stages uploaded documents under a dedicated directory until the
// pipeline is done with them. Names carry an unpredictable uuid prefix so
// concurrent acquisitions never collide.
type TempStore struct {
	root   string
	maxAge time.Duration
}

// NewTempStore creates the staging root if needed. maxAge bounds how long an
// orphaned file may survive before the janitor removes it.
func NewTempStore(root string, maxAge time.Duration) (*TempStore, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "process-extract")
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, model.WrapError(err, model.ErrKindUpload, "resolve temp root")
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, model.WrapError(err, model.ErrKindUpload, "create temp root")
	}
	return &TempStore{root: abs, maxAge: maxAge}, nil
}

// Root reports the resolved staging directory.
func (s *TempStore) Root() string {
	return s.root
}

// Acquire stages the reader's contents under a collision-free name derived
// from the sanitized suggestion and returns the absolute path. A partial file
// left by a failed copy is removed before the error is returned.
func (s *TempStore) Acquire(suggestedName string, r io.Reader) (string, error) {
	prefix := strings.ReplaceAll(uuid.New().String(), "-", "")
	path := filepath.Join(s.root, prefix+"_"+SanitizeFilename(suggestedName))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", model.WrapError(err, model.ErrKindUpload, "stage upload")
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", model.WrapError(err, model.ErrKindUpload, "write staged upload")
	}

	zap.L().Debug("upload staged",
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return path, nil
}

// Release removes a staged file. It is idempotent: a missing file is
// success, and any other failure is logged rather than surfaced so cleanup
// can never mask the pipeline's own outcome. Paths outside the staging root
// are refused.
func (s *TempStore) Release(path string) {
	if path == "" {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil || !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		zap.L().Warn("refusing to release path outside temp root", zap.String("path", path))
		return
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("temp file release failed",
			zap.String("path", abs),
			zap.Error(err),
		)
	}
}

// Sweep removes staged files older than maxAge and reports how many were
// deleted. Files that appear mid-sweep or fail to stat are skipped.
func (s *TempStore) Sweep(now time.Time) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		zap.L().Warn("temp sweep failed", zap.Error(err))
		return 0
	}

	removed := 0
	cutoff := now.Add(-s.maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			zap.L().Warn("temp sweep could not remove file",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		zap.L().Info("temp sweep removed orphaned files", zap.Int("count", removed))
	}
	return removed
}

// StartJanitor sweeps on the given interval until the context is cancelled.
func (s *TempStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(time.Now())
			}
		}
	}()
}
