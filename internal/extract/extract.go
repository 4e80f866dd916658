// Package extract infers a chapter title and readable body from arbitrary
// chapter page HTML through an ordered chain of heuristics.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/noveld/internal/chapters"
	"github.com/brogergvhs/noveld/internal/textnorm"
)

// Unavailable is the body returned when every strategy fails.
const Unavailable = "[content unavailable]"

// TitleSelectors are tried in order for the chapter title.
var TitleSelectors = []string{
	"h1",
	"h2",
	"h3",
	"title",
	"[class*=title]",
	"[class*=chapter]",
}

// Result is the outcome of one extraction.
type Result struct {
	Title string
	Body  string

	// Strategy names the tier that produced Body; empty with Found=false.
	Strategy string
	Found    bool
}

// Extractor runs the title lookup and the body strategy chain.
type Extractor struct {
	strategies     []Strategy
	titleSelectors []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the body strategy chain.
func WithStrategies(s ...Strategy) Option {
	return func(e *Extractor) { e.strategies = s }
}

// WithPrepended puts site-specific strategies in front of the default chain.
func WithPrepended(s ...Strategy) Option {
	return func(e *Extractor) { e.strategies = append(append([]Strategy{}, s...), e.strategies...) }
}

// WithTitleSelectors replaces the title selector list.
func WithTitleSelectors(sel ...string) Option {
	return func(e *Extractor) { e.titleSelectors = sel }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		strategies:     DefaultStrategies(),
		titleSelectors: TitleSelectors,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract never fails: unparsable or empty pages yield the fallback title and
// the Unavailable body.
func (e *Extractor) Extract(rawHTML, fallbackTitle string) Result {
	res := Result{Title: strings.TrimSpace(Decode(fallbackTitle)), Body: Unavailable}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return res
	}

	if t := e.title(doc); t != "" {
		res.Title = t
	}

	for _, s := range e.strategies {
		body, ok := s.Extract(doc)
		if !ok || strings.TrimSpace(body) == "" {
			continue
		}
		res.Body = textnorm.TrimBlankLines(body)
		res.Strategy = s.Name()
		res.Found = true
		break
	}

	return res
}

func (e *Extractor) title(doc *goquery.Document) string {
	for _, sel := range e.titleSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			t := InlineText(el)
			if n := utf8.RuneCountInString(t); n > 0 && n < MaxTitleRunes {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// Chapter is one fetched and extracted chapter, ready for assembly. OK=false
// chapters still carry a placeholder body so assembly keeps their position.
type Chapter struct {
	Link  chapters.Link
	Title string
	Body  string
	OK    bool
}
