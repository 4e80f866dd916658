package util

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PartialSuffix marks files that are still being written.
const PartialSuffix = ".part"

var reUnsafeName = regexp.MustCompile(`[\\/:*?"<>|]+`)

// SafeName replaces characters that are invalid in file names on common
// filesystems.
func SafeName(s string) string {
	s = strings.TrimSpace(reUnsafeName.ReplaceAllString(s, "_"))
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// WriteFileAtomic writes data next to path with PartialSuffix and renames it
// into place, so readers never observe a half-written volume.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*"+PartialSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if rerr := os.Remove(tmpName); rerr != nil && !os.IsNotExist(rerr) {
			log.Printf("error removing temp file %s: %v", tmpName, rerr)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}

	return nil
}

// UniquePath returns path, or path with " (n)" inserted before the extension
// when a file already exists there.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
