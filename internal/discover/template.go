package discover

import (
	"fmt"
	"strings"
)

// Template renders per-page image URLs. Parts is the first page's URL split
// on the first-page fragment; the page number, zero-padded to Width digits
// and followed by Tail, goes between every pair of parts.
type Template struct {
	Parts []string
	Tail  string
	Width int
}

// URL returns the image URL of page (1-based).
func (t Template) URL(page int) string {
	return strings.Join(t.Parts, fmt.Sprintf("%0*d", t.Width, page)+t.Tail)
}

// String shows the template with a {page} placeholder.
func (t Template) String() string {
	return strings.Join(t.Parts, "{page}"+t.Tail)
}

// ParseTemplate derives a Template from the first page's image URL by
// substituting every occurrence of fragment (e.g. "01.jpg"). The leading
// digits of fragment define the zero-padding width.
func ParseTemplate(firstPageURL, fragment string) (Template, error) {
	width := 0
	for width < len(fragment) && fragment[width] >= '0' && fragment[width] <= '9' {
		width++
	}
	if width == 0 {
		return Template{}, fmt.Errorf("%w: fragment %q has no page number", ErrTemplate, fragment)
	}

	if !strings.Contains(firstPageURL, fragment) {
		return Template{}, fmt.Errorf("%w: %q not found in %s", ErrTemplate, fragment, firstPageURL)
	}

	return Template{
		Parts: strings.Split(firstPageURL, fragment),
		Tail:  fragment[width:],
		Width: width,
	}, nil
}
