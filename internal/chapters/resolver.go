package chapters

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TOCSelectors are tried in order; the first container holding at least one
// anchor provides the candidate set.
var TOCSelectors = []string{
	"#list",
	".chapter-list",
	".chapters",
	".read-list",
	".box_list",
	".chapter_list",
	".box",
	"#chapterlist",
	".catalog",
	".toc",
}

// Resolve builds the chapter index of a directory page.
//
// Ordering is heuristic: when enough links carry a chapter number the list is
// sorted by it, otherwise a newest-first listing is detected by comparing
// adjacent numbers and reversed. Pathological tables of contents can still
// come out in the wrong order.
func Resolve(doc *goquery.Document, pageURL string) (Index, error) {
	return ResolveAnchors(BookTitle(doc), CollectAnchors(doc, pageURL))
}

// BookTitle picks the first non-empty h1, then the document title.
func BookTitle(doc *goquery.Document) string {
	if t := collapseSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return "book"
}

// CollectAnchors returns candidate chapter anchors with hrefs resolved against
// pageURL.
func CollectAnchors(doc *goquery.Document, pageURL string) []Anchor {
	base, _ := url.Parse(pageURL)

	for _, sel := range TOCSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}

		items := anchorsIn(container, base, nil)
		if len(items) > 0 {
			return items
		}
	}

	return anchorsIn(doc.Selection, base, looksLikeChapter)
}

func anchorsIn(s *goquery.Selection, base *url.URL, keep func(href, text string) bool) []Anchor {
	var out []Anchor

	s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		raw, _ := a.Attr("href")
		raw = strings.TrimSpace(raw)
		if skipHref(raw) {
			return
		}

		text := collapseSpace(a.Text())
		if keep != nil && !keep(raw, text) {
			return
		}

		href := resolveURL(base, raw)
		if href == "" {
			return
		}

		out = append(out, Anchor{Href: href, Text: text})
	})

	return out
}

// ResolveAnchors turns ordered candidate anchors into an Index: duplicates
// collapse onto their first occurrence, numbers are inferred and the reading
// order is decided.
func ResolveAnchors(bookTitle string, anchors []Anchor) (Index, error) {
	seen := make(map[string]bool, len(anchors))
	links := make([]Link, 0, len(anchors))

	for _, a := range anchors {
		if a.Href == "" || seen[a.Href] {
			continue
		}
		seen[a.Href] = true

		links = append(links, Link{
			Href:   a.Href,
			Text:   a.Text,
			Number: inferNumber(a.Href, a.Text),
		})
	}

	if len(links) == 0 {
		return Index{}, ErrEmptyIndex
	}

	order(links)

	for i := range links {
		links[i].Seq = i + 1
	}

	if strings.TrimSpace(bookTitle) == "" {
		bookTitle = "book"
	}

	return Index{BookTitle: strings.TrimSpace(bookTitle), Links: links}, nil
}

func order(links []Link) {
	numbered := 0
	for _, l := range links {
		if l.Number != nil {
			numbered++
		}
	}

	if numbered >= max(3, len(links)*3/10) {
		sort.SliceStable(links, func(i, j int) bool {
			return numberOrZero(links[i]) < numberOrZero(links[j])
		})
		return
	}

	asc, desc := 0, 0
	for i := 0; i+1 < len(links); i++ {
		a, b := links[i].Number, links[i+1].Number
		if a == nil || b == nil {
			continue
		}
		switch {
		case *a > *b:
			desc++
		case *a < *b:
			asc++
		}
	}

	if desc > asc {
		for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
			links[i], links[j] = links[j], links[i]
		}
	}
}

func numberOrZero(l Link) int {
	if l.Number == nil {
		return 0
	}
	return *l.Number
}

func skipHref(h string) bool {
	lh := strings.ToLower(h)
	return h == "" ||
		strings.HasPrefix(lh, "#") ||
		strings.HasPrefix(lh, "javascript:") ||
		strings.HasPrefix(lh, "mailto:") ||
		strings.HasPrefix(lh, "tel:")
}

func resolveURL(base *url.URL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	if base == nil || u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
