package util

import (
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
)

// SetupInterruptHandler calls onInterrupt on the first SIGINT/SIGTERM. A
// second signal exits immediately after removing partial files under
// outputDirs.
func SetupInterruptHandler(onInterrupt func(), outputDirs ...string) (stop func()) {
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sig:
		case <-done:
			return
		}
		fmt.Println("\nInterrupt received. Stopping...")
		onInterrupt()

		select {
		case <-sig:
		case <-done:
			return
		}
		for _, dir := range outputDirs {
			CleanupPartialFiles(dir)
		}
		fmt.Println("\nExiting due to interrupt.")
		os.Exit(1)
	}()

	return func() {
		signal.Stop(sig)
		close(done)
	}
}

// CleanupPartialFiles removes leftover PartialSuffix files below dir.
func CleanupPartialFiles(dir string) {
	if dir == "" {
		return
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), PartialSuffix) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			fmt.Printf("Error cleaning up %s: %v\n", path, err)
		} else {
			fmt.Printf("Removed %s\n", path)
		}
		return nil
	})
}
