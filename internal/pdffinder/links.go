// Package pdffinder locates alternate PDF links for papers whose upstream
// record carries none, by rendering the paper landing page.
package pdffinder

import (
	"net/url"
	"strings"

	"github.com/citescout/citescout/internal/normalize"
)

// BestLink picks the most promising PDF link from the anchors found on a
// landing page: a direct .pdf link first, then an arXiv abstract converted
// to its PDF form. Returns "" when nothing qualifies.
func BestLink(hrefs []string) string {
	var arxivFallback string
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		if IsDirectPDF(href) {
			return href
		}
		if arxivFallback == "" {
			if id := arxivIDFromURL(href); id != "" {
				arxivFallback = normalize.ArxivPDFURL(id)
			}
		}
	}
	return arxivFallback
}

// IsDirectPDF reports whether href points straight at a PDF document.
func IsDirectPDF(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func arxivIDFromURL(href string) string {
	if !strings.Contains(href, "arxiv.org") {
		return ""
	}
	_, after, found := strings.Cut(href, "/abs/")
	if !found {
		return ""
	}
	if i := strings.IndexAny(after, "/?#"); i >= 0 {
		after = after[:i]
	}
	return after
}
