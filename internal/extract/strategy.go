package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one tier of the body extraction chain.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) (string, bool)
}

// ContentSelectors are the known content containers, most specific first.
var ContentSelectors = []string{
	"#content",
	".content",
	"#chapter-content",
	".chapter-content",
	".novel-content",
	"#novel-content",
	".text-content",
	"#text-content",
	".read-content",
	"[class*=content]",
	".chapter",
	"#chapter",
	"main",
	"article",
	"section",
	".txt",
	"#txt",
	".read",
	"#read",
	"[class*=book]",
	"[class*=story]",
}

// ContainerStrategy takes the first usable element matching a known content
// container selector.
type ContainerStrategy struct {
	Selectors []string
}

func (ContainerStrategy) Name() string { return "container" }

func (s ContainerStrategy) Extract(doc *goquery.Document) (string, bool) {
	selectors := s.Selectors
	if len(selectors) == 0 {
		selectors = ContentSelectors
	}

	for _, sel := range selectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			text := Text(el)
			if Usable(text) {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}

	return "", false
}

// ParagraphStrategy joins every qualifying <p> when there are enough of them.
type ParagraphStrategy struct {
	MinRunes      int
	MinParagraphs int
}

func (ParagraphStrategy) Name() string { return "paragraphs" }

func (s ParagraphStrategy) Extract(doc *goquery.Document) (string, bool) {
	minRunes := s.MinRunes
	if minRunes <= 0 {
		minRunes = 20
	}
	minParas := s.MinParagraphs
	if minParas <= 0 {
		minParas = 4
	}

	var paras []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := Text(p)
		if runeCount(text) > minRunes && !IsBoilerplate(text) {
			paras = append(paras, text)
		}
	})

	if len(paras) < minParas {
		return "", false
	}

	body := strings.Join(paras, "\n\n")
	if runeCount(body) <= MinBodyRunes {
		return "", false
	}

	return body, true
}

// LongestBlockStrategy picks the longest usable block container.
type LongestBlockStrategy struct {
	MinRunes int
}

func (LongestBlockStrategy) Name() string { return "longest-block" }

func (s LongestBlockStrategy) Extract(doc *goquery.Document) (string, bool) {
	minRunes := s.MinRunes
	if minRunes <= 0 {
		minRunes = 200
	}

	var best string
	bestLen := 0
	doc.Find("div, section, article, td").Each(func(_ int, el *goquery.Selection) {
		text := Text(el)
		n := runeCount(text)
		if n > bestLen && n > minRunes && !IsBoilerplate(text) {
			best, bestLen = text, n
		}
	})

	return best, best != ""
}

// DefaultStrategies is the built-in extraction chain.
func DefaultStrategies() []Strategy {
	return []Strategy{
		ContainerStrategy{},
		ParagraphStrategy{},
		LongestBlockStrategy{},
	}
}
