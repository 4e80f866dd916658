package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type Logger interface {
	Errorf(format string, args ...any)
}

// Via tells which path a volume took.
type Via string

const (
	ViaDirectory Via = "directory"
	ViaDownload  Via = "download"
)

// Saved records one persisted volume.
type Saved struct {
	Name string
	Via  Via
	// ID is the downloader's identifier; empty for directory writes.
	ID string
}

// Sink applies the write policy for one session: directory first; an
// authorization failure disables the directory and fails the write; any
// other directory error, or no directory at all, goes to the downloader.
type Sink struct {
	dir Writer
	dl  Downloader
	log Logger

	mu          sync.Mutex
	dirDisabled bool
	saved       []Saved
}

// NewSink builds a sink. dir may be nil when no directory was granted.
func NewSink(dir Writer, dl Downloader, log Logger) *Sink {
	return &Sink{dir: dir, dl: dl, log: log}
}

// Reset re-enables directory writes and clears the record for a new session.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirDisabled = false
	s.saved = nil
}

func (s *Sink) Persist(ctx context.Context, name, text string) error {
	s.mu.Lock()
	useDir := s.dir != nil && !s.dirDisabled
	s.mu.Unlock()

	if useDir {
		err := s.dir.Write(ctx, name, text)
		if err == nil {
			s.record(Saved{Name: name, Via: ViaDirectory})
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if errors.Is(err, ErrNoDir) || errors.Is(err, ErrNoPermission) {
			s.mu.Lock()
			s.dirDisabled = true
			s.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrWriteUnauthorized, err)
		}
		if s.log != nil {
			s.log.Errorf("directory write of %s failed, falling back to download: %v\n", name, err)
		}
	}

	if s.dl == nil {
		return errors.New("no downloader configured")
	}

	id, err := s.dl.Download(ctx, []byte(text), name)
	if err != nil {
		return err
	}
	s.record(Saved{Name: name, Via: ViaDownload, ID: id})

	return nil
}

// DirDisabled reports whether an authorization failure switched off
// directory writes.
func (s *Sink) DirDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirDisabled
}

// Saved lists the volumes persisted since the last Reset.
func (s *Sink) Saved() []Saved {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Saved(nil), s.saved...)
}

func (s *Sink) record(v Saved) {
	s.mu.Lock()
	s.saved = append(s.saved, v)
	s.mu.Unlock()
}
