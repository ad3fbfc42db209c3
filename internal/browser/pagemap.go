package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxPageMapElements caps the elements listed in a PageMap.
const maxPageMapElements = 200

// PageMap represents the analyzed structure of a web page
type PageMap struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Nodes []Node `json:"elements"`
}

// Node describes a notable element on the page
type Node struct {
	Selector string `json:"selector"`
	Tag      string `json:"tag"`
	ID       string `json:"id,omitempty"`
	Class    string `json:"class,omitempty"`
	Text     string `json:"text,omitempty"`
	Href     string `json:"href,omitempty"`
	Src      string `json:"src,omitempty"`
}

// Snapshot builds a PageMap of the session's current document.
func Snapshot(ctx context.Context, s Session) (*PageMap, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return nil, err
	}
	loc, err := s.Location(ctx)
	if err != nil {
		return nil, err
	}
	return BuildPageMap(loc, html)
}

// BuildPageMap lists links, images and elements carrying an id.
func BuildPageMap(pageURL, html string) (*PageMap, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing page HTML: %w", err)
	}

	pm := &PageMap{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	seen := make(map[string]bool)
	doc.Find("a[href], img[src], [id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(pm.Nodes) >= maxPageMapElements {
			return false
		}

		selector := selectorFor(s)
		if selector == "" || seen[selector] {
			return true
		}
		seen[selector] = true

		node := Node{
			Selector: selector,
			Tag:      goquery.NodeName(s),
			ID:       s.AttrOr("id", ""),
			Class:    strings.TrimSpace(s.AttrOr("class", "")),
			Text:     truncate(strings.Join(strings.Fields(s.Text()), " "), 50),
			Href:     s.AttrOr("href", ""),
			Src:      s.AttrOr("src", ""),
		}
		pm.Nodes = append(pm.Nodes, node)
		return true
	})

	return pm, nil
}

// selectorFor generates a CSS selector for s, preferring its id, then a
// class selector unique in the document, then an nth-child path from the
// nearest ancestor that has one.
func selectorFor(s *goquery.Selection) string {
	tag := goquery.NodeName(s)

	if id, ok := s.Attr("id"); ok && isValidCSSIdent(id) {
		return "#" + id
	}

	if class, ok := s.Attr("class"); ok {
		var valid []string
		for _, c := range strings.Fields(class) {
			if isValidCSSIdent(c) {
				valid = append(valid, c)
			}
			if len(valid) == 2 {
				break
			}
		}
		if len(valid) > 0 {
			selector := tag + "." + strings.Join(valid, ".")
			if root := s.Closest("html"); root.Length() > 0 && root.Find(selector).Length() == 1 {
				return selector
			}
		}
	}

	parent := s.Parent()
	if parent.Length() == 0 || goquery.NodeName(parent) == "html" {
		return tag
	}
	index := s.PrevAll().Length() + 1
	parentSelector := selectorFor(parent)
	return fmt.Sprintf("%s > %s:nth-child(%d)", parentSelector, tag, index)
}

// isValidCSSIdent reports whether s can be used verbatim after # or . in a
// selector.
func isValidCSSIdent(s string) bool {
	if s == "" {
		return false
	}
	if s[0] >= '0' && s[0] <= '9' {
		return false
	}
	if len(s) > 1 && s[0] == '-' && s[1] >= '0' && s[1] <= '9' {
		return false
	}
	return !strings.ContainsAny(s, ".:#[]()>~+*/\\ \"'")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
