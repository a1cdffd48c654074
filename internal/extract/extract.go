// Package extract turns rendered HTML into the readable text stored in page artifacts.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
)

// Output formats.
const (
	FormatText      = "text"
	FormatHTML2Text = "html2text"
)

// DefaultSelectors is the main-content fallback chain. The first selector with a match wins.
var DefaultSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".main-content",
	".post-content",
	".entry-content",
	"body",
}

// DefaultStripTags are removed before text is collected.
var DefaultStripTags = []string{"script", "style", "nav", "header", "footer", "aside"}

// Extractor implements crawler.Extractor with goquery.
type Extractor struct {
	format    string
	selectors []string
	strip     string
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithSelectors overrides the content selector chain.
func WithSelectors(selectors ...string) Option {
	return func(e *Extractor) {
		if len(selectors) > 0 {
			e.selectors = selectors
		}
	}
}

// New builds an Extractor for the named format. An empty format means FormatText.
func New(format string, opts ...Option) (*Extractor, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatHTML2Text:
	default:
		return nil, fmt.Errorf("unknown extract format %q", format)
	}
	e := &Extractor{
		format:    format,
		selectors: DefaultSelectors,
		strip:     strings.Join(DefaultStripTags, ", "),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract returns the text of the first matching content region, falling back to the
// whole document when that region yields nothing.
func (e *Extractor) Extract(raw string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	for _, sel := range e.selectors {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		text, err := e.render(found.First())
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
		break
	}
	return e.render(doc.Selection)
}

func (e *Extractor) render(sel *goquery.Selection) (string, error) {
	sel = sel.Clone()
	sel.Find(e.strip).Remove()
	if e.format == FormatHTML2Text {
		markup, err := goquery.OuterHtml(sel)
		if err != nil {
			return "", fmt.Errorf("serialize html: %w", err)
		}
		text, err := html2text.FromString(markup, html2text.Options{OmitLinks: true, TextOnly: true})
		if err != nil {
			return "", fmt.Errorf("convert html: %w", err)
		}
		return strings.TrimSpace(text), nil
	}
	return strippedText(sel), nil
}

// strippedText joins every non-blank text node, trimmed, with newlines.
func strippedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if n.Data == "template" || n.Data == "noscript" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}
