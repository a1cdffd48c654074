// Package render holds link discovery shared by the render backends.
package render

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DropdownSelectors match menus whose links are often hidden until interaction.
var DropdownSelectors = []string{
	"select",
	".dropdown",
	".dropdown-menu",
	".dropdown-content",
	`[role="menu"]`,
	`[role="listbox"]`,
	"nav ul li ul",
	"nav ol li ol",
	".menu-item-has-children",
}

// NavSelector matches ordinary navigation anchors.
const NavSelector = "nav a, .navigation a, .menu a"

// ClickableSelector is DropdownSelectors without the select element, which is read
// through its options rather than clicked.
func ClickableSelector() string {
	return strings.Join(DropdownSelectors[1:], ", ")
}

// Links returns candidate hrefs from dropdowns, select options and navigation, in
// document order per selector and without duplicates. Values are raw and unresolved.
func Links(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var (
		out  []string
		seen = make(map[string]struct{})
	)
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	}

	for _, sel := range DropdownSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "select" {
				s.Find("option").Each(func(_ int, opt *goquery.Selection) {
					value, _ := opt.Attr("value")
					if strings.HasPrefix(value, "http") || strings.HasPrefix(value, "/") {
						add(value)
					}
				})
				return
			}
			s.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
				href, _ := a.Attr("href")
				add(href)
			})
		})
	}
	doc.Find(NavSelector).Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			add(href)
		}
	})
	return out, nil
}

// Title returns the trimmed document title.
func Title(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
