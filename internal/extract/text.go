package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/brogergvhs/noveld/internal/textnorm"
)

const (
	// MinBodyRunes is the length a body candidate must exceed to be usable.
	MinBodyRunes = 100
	// MaxTitleRunes bounds accepted titles.
	MaxTitleRunes = 200
)

var (
	boilerplateMarkers = []string{
		"Copyright",
		"©",
		"版权",
		"All Rights Reserved",
		"all rights reserved",
		"网站地址",
	}

	reBareURL   = regexp.MustCompile(`(?i)https?://|www\.`)
	reHTMLSpace = regexp.MustCompile(`[ \t\n\r\f]+`)
)

// IsBoilerplate reports whether decoded text looks like a legal notice or a
// link dump rather than narrative content.
func IsBoilerplate(text string) bool {
	for _, m := range boilerplateMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return reBareURL.MatchString(text)
}

// Usable reports whether decoded text can serve as a chapter body. Length is
// measured on the normalized text so layout whitespace does not count.
func Usable(text string) bool {
	return runeCount(text) > MinBodyRunes && !IsBoilerplate(text)
}

func runeCount(text string) int {
	return utf8.RuneCountInString(textnorm.Normalize(text))
}

// Decode resolves named and numeric character references left in text and
// turns non-breaking spaces into plain ones.
func Decode(s string) string {
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return strings.ReplaceAll(s, "\u00a0", " ")
}

// Text renders the readable text of a selection: block elements and <br>
// become line breaks, scripts and styles are dropped and entities are
// decoded. Inner blank lines and indentation are kept; normalization is left
// to the assembler's clean_empty_lines switch.
func Text(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		render(&b, n)
	}
	return textnorm.TrimBlankLines(Decode(b.String()))
}

// InlineText is Text collapsed onto a single line, used for titles.
func InlineText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(Text(sel)), " ")
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(reHTMLSpace.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Iframe:
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
	case html.CommentNode:
		return
	}

	sep := blockSeparator(n)
	b.WriteString(sep)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	b.WriteString(sep)
}

func blockSeparator(n *html.Node) string {
	if n.Type != html.ElementNode {
		return ""
	}
	switch n.DataAtom {
	case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Pre:
		return "\n\n"
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Li, atom.Ul, atom.Ol,
		atom.Tr, atom.Table, atom.Dd, atom.Dt, atom.Header, atom.Footer, atom.Nav, atom.Aside:
		return "\n"
	}
	return ""
}
