// Package normalize converts raw upstream publication payloads into
// canonical records, deduplicates them, and ranks by citation count.
package normalize

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/citescout/citescout/internal/scholar"
)

const maxSlugLen = 60

var (
	slugSeparators = regexp.MustCompile(`[\s_]+`)
	slugDisallowed = regexp.MustCompile(`[^a-z0-9\-:.]`)
	slugHyphenRuns = regexp.MustCompile(`-+`)
)

// Result is the outcome of normalizing one raw pool.
type Result struct {
	Records []scholar.PublicationRecord
	// Dropped counts raw entries discarded for having no usable title.
	Dropped int
}

// Normalize converts one raw paper. It never fails; the boolean is false
// only when the record has no usable title and must be dropped.
func Normalize(raw scholar.RawPaper) (scholar.PublicationRecord, bool) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return scholar.PublicationRecord{}, false
	}
	rec := scholar.PublicationRecord{
		Title:    title,
		Venue:    strings.TrimSpace(raw.Venue),
		Year:     raw.Year,
		SourceID: raw.PaperID,
	}
	if raw.CitationCount != nil && *raw.CitationCount > 0 {
		rec.CitationCount = *raw.CitationCount
	}
	for _, a := range raw.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	rec.DOI = NormalizeDOI(externalID(raw.ExternalIDs, "DOI"))
	rec.PDFURL = pdfURL(raw)
	return rec, true
}

// Pool normalizes every entry of a raw pool, counting dropped records.
func Pool(papers []scholar.RawPaper) Result {
	var res Result
	for _, p := range papers {
		rec, ok := Normalize(p)
		if !ok {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// Dedup collapses records sharing a dedup key, keeping the richer of each
// pair and preserving first-seen order.
func Dedup(records []scholar.PublicationRecord) []scholar.PublicationRecord {
	index := make(map[string]int, len(records))
	out := make([]scholar.PublicationRecord, 0, len(records))
	for _, rec := range records {
		key := rec.DedupKey()
		at, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}
		if rec.PopulatedFields() > out[at].PopulatedFields() {
			out[at] = rec
		}
	}
	return out
}

// Rank sorts records by citation count descending, ties keeping their
// incoming order, and truncates to maxPapers when positive.
func Rank(records []scholar.PublicationRecord, maxPapers int) []scholar.PublicationRecord {
	ranked := make([]scholar.PublicationRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CitationCount > ranked[j].CitationCount
	})
	if maxPapers > 0 && len(ranked) > maxPapers {
		ranked = ranked[:maxPapers]
	}
	return ranked
}

// NormalizeDOI trims resolver prefixes and guarantees the registry "10."
// prefix. Empty input stays empty.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/"} {
		if strings.HasPrefix(doi, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	if !strings.HasPrefix(doi, "10.") {
		doi = "10." + doi
	}
	return doi
}

// PaperURL builds the canonical landing page URL for a paper, with a
// title slug when a title is available.
func PaperURL(paperID, title string) string {
	slug := Slug(title)
	if slug == "" {
		return "https://www.semanticscholar.org/paper/" + paperID
	}
	return "https://www.semanticscholar.org/paper/" + slug + "/" + paperID
}

// Slug converts a title to its URL slug form: lowercased, separators
// hyphenated, disallowed runes removed, capped at 60 characters.
func Slug(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = slugDisallowed.ReplaceAllString(slug, "")
	slug = slugHyphenRuns.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	return url.QueryEscape(slug)
}

// ArxivPDFURL derives the direct PDF link from an arXiv id, stripping any
// version suffix. Empty input yields empty output.
func ArxivPDFURL(arxivID string) string {
	arxivID = strings.TrimSpace(arxivID)
	if arxivID == "" {
		return ""
	}
	if i := strings.IndexByte(arxivID, 'v'); i > 0 {
		arxivID = arxivID[:i]
	}
	return "https://arxiv.org/pdf/" + arxivID + ".pdf"
}

func pdfURL(raw scholar.RawPaper) string {
	if raw.OpenAccessPDF != "" {
		return raw.OpenAccessPDF
	}
	if id := externalID(raw.ExternalIDs, "ArXiv"); id != "" {
		return ArxivPDFURL(id)
	}
	return ""
}

func externalID(ids map[string]string, key string) string {
	if ids == nil {
		return ""
	}
	if v, ok := ids[key]; ok {
		return v
	}
	// Upstream key casing is not fully consistent.
	for k, v := range ids {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
