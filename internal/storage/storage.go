// Package storage persists finished volumes, either into a granted output
// directory or through a fallback downloader.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brogergvhs/noveld/internal/util"
)

var (
	// ErrNoDir means no usable output directory has been granted.
	ErrNoDir = errors.New("output directory not available")
	// ErrNoPermission means the output directory refused the write.
	ErrNoPermission = errors.New("no permission to write output directory")
	// ErrWriteUnauthorized is returned once directory writes are disabled for
	// the session.
	ErrWriteUnauthorized = errors.New("directory write not authorized")
)

// Writer writes text to a path relative to its root.
type Writer interface {
	Write(ctx context.Context, relPath, text string) error
}

// Downloader saves data under filename and returns an identifier for it.
type Downloader interface {
	Download(ctx context.Context, data []byte, filename string) (string, error)
}

// DirWriter writes into an existing root directory. The root itself is never
// created: its absence is reported as ErrNoDir.
type DirWriter struct {
	root string
}

func NewDirWriter(root string) *DirWriter {
	return &DirWriter{root: root}
}

func (w *DirWriter) Root() string { return w.root }

func (w *DirWriter) Write(ctx context.Context, relPath, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(w.root) == "" {
		return ErrNoDir
	}

	info, err := os.Stat(w.root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNoDir, w.root)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrNoPermission, w.root)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrNoDir, w.root)
	}

	rel := filepath.FromSlash(relPath)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("refusing to write outside output directory: %q", relPath)
	}

	target := filepath.Join(w.root, rel)
	if err := util.WriteFileAtomic(target, []byte(text), 0644); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrNoPermission, err)
		}
		return err
	}

	return nil
}

// FileDownloader stores files in a downloads folder, never overwriting an
// existing file.
type FileDownloader struct {
	dir string
}

func NewFileDownloader(dir string) *FileDownloader {
	return &FileDownloader{dir: dir}
}

func (d *FileDownloader) Download(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := filepath.FromSlash(filename)
	if !filepath.IsLocal(rel) {
		rel = util.SafeName(filepath.Base(rel))
	}

	target := util.UniquePath(filepath.Join(d.dir, rel))
	if err := util.WriteFileAtomic(target, data, 0644); err != nil {
		return "", fmt.Errorf("download %s: %w", filename, err)
	}

	return uuid.NewString(), nil
}

// DefaultDownloadsDir is ~/Downloads when it exists, else the working
// directory.
func DefaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, "Downloads")
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return "."
}
