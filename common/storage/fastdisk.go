package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FastDisk is the local fast-storage layer that orchestrated assets are
// copied to. Writes go via a temp file and rename so a partially written
// asset is never visible at its final path.
type FastDisk struct {
	root string
}

// NewFastDisk creates a FastDisk rooted at the given directory
func NewFastDisk(root string) *FastDisk {
	return &FastDisk{root: root}
}

// Exists reports whether a file is present at path
func (f *FastDisk) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Touch updates the last-access marker used by eviction bookkeeping
func (f *FastDisk) Touch(path string) {
	now := time.Now()
	_ = os.Chtimes(path, now, now)
}

// WriteStream copies r to path. The copy is cancellable; on error or
// cancellation the partial temp file is removed and the final path is
// left untouched.
func (f *FastDisk) WriteStream(ctx context.Context, path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".partial-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return written, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return written, fmt.Errorf("failed to finalise %s: %w", path, err)
	}
	return written, nil
}

// Remove deletes a file, ignoring already-missing files
func (f *FastDisk) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// contextReader aborts a copy between reads once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
