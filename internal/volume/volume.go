// Package volume accumulates extracted chapters into bounded text volumes and
// decides when each one is flushed to the writer.
package volume

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/extract"
	"github.com/brogergvhs/noveld/internal/textnorm"
	"github.com/brogergvhs/noveld/internal/util"
)

// Writer persists a finished volume under a relative file name.
type Writer interface {
	Persist(ctx context.Context, name, text string) error
}

// Volume is the accumulator for consecutive chapters.
type Volume struct {
	// Start and End are 1-based positions in the chapter stream.
	Start int
	End   int
	Count int

	// Numbers holds each chapter's inferred number, or its position when none
	// was inferred.
	Numbers []int

	text strings.Builder
}

// Text returns the accumulated text.
func (v *Volume) Text() string { return v.text.String() }

// Empty reports whether no chapter has been appended.
func (v *Volume) Empty() bool { return v.Count == 0 }

// Namer builds the base file name of a volume.
type Namer func(book string, v *Volume) string

// RangeNamer names volumes "<book><start>-<end>.txt".
func RangeNamer(book string, v *Volume) string {
	return fmt.Sprintf("%s%d-%d.txt", book, v.Start, v.End)
}

// SelectionNamer names a merged chapter selection "<book>_ch<1-3,5>.txt".
func SelectionNamer(book string, v *Volume) string {
	return fmt.Sprintf("%s_ch%s.txt", book, chapters.FormatRange(v.Numbers))
}

// Flushed describes a volume handed to the writer.
type Flushed struct {
	Name  string
	Start int
	End   int
	Count int
	Bytes int
}

type Options struct {
	BookTitle  string
	VolumeSize int
	// Clean applies the text normalizer to titles, bodies and whole volumes.
	Clean bool
	// Dir is an optional sub folder prepended to every file name.
	Dir   string
	Namer Namer
	// OnFlush runs before a volume is handed to the writer.
	OnFlush func(Flushed)
}

// Assembler is not safe for concurrent use; the orchestrator feeds it from a
// single goroutine in reading order.
type Assembler struct {
	w    Writer
	opts Options

	cur     *Volume
	next    int
	flushed []Flushed
}

func New(w Writer, opts Options) *Assembler {
	if opts.VolumeSize < 1 {
		opts.VolumeSize = 1
	}
	if opts.Namer == nil {
		opts.Namer = RangeNamer
	}
	if strings.TrimSpace(opts.BookTitle) == "" {
		opts.BookTitle = "book"
	}

	return &Assembler{w: w, opts: opts, cur: &Volume{}, next: 1}
}

// Add appends one chapter and flushes the volume once it holds VolumeSize
// chapters.
func (a *Assembler) Add(ctx context.Context, ch extract.Chapter) error {
	pos := a.next
	a.next++

	v := a.cur
	if v.Empty() {
		v.Start = pos
		v.text.WriteString(a.opts.BookTitle)
		v.text.WriteString("\n\n")
	}

	title := textnorm.Apply(ch.Title, a.opts.Clean)
	if strings.TrimSpace(title) == "" {
		title = ch.Link.Label()
	}
	body := textnorm.Apply(ch.Body, a.opts.Clean)

	v.text.WriteString(title)
	v.text.WriteString("\n\n")
	v.text.WriteString(body)
	v.text.WriteString("\n\n")

	v.End = pos
	v.Count++
	num := ch.Link.Seq
	if ch.Link.Number != nil {
		num = *ch.Link.Number
	}
	v.Numbers = append(v.Numbers, num)

	if v.Count >= a.opts.VolumeSize {
		return a.Flush(ctx)
	}

	return nil
}

// Flush writes the current volume if it holds any chapter and starts a new
// one. Empty volumes are never written.
func (a *Assembler) Flush(ctx context.Context) error {
	v := a.cur
	if v.Empty() {
		return nil
	}

	name := util.SafeName(a.opts.Namer(a.opts.BookTitle, v))
	if dir := strings.TrimSpace(a.opts.Dir); dir != "" {
		name = path.Join(util.SafeName(dir), name)
	}

	text := textnorm.Apply(v.Text(), a.opts.Clean)
	info := Flushed{Name: name, Start: v.Start, End: v.End, Count: v.Count, Bytes: len(text)}

	if a.opts.OnFlush != nil {
		a.opts.OnFlush(info)
	}

	if err := a.w.Persist(ctx, name, text); err != nil {
		return fmt.Errorf("write volume %s: %w", name, err)
	}

	a.flushed = append(a.flushed, info)
	a.cur = &Volume{}

	return nil
}

// Discard drops the in-progress volume without writing it.
func (a *Assembler) Discard() {
	a.cur = &Volume{}
}

// Current exposes the in-progress volume.
func (a *Assembler) Current() *Volume { return a.cur }

// Flushed lists the volumes written so far.
func (a *Assembler) Flushed() []Flushed { return a.flushed }
