package semscholar

import (
	"encoding/json"
	"strconv"

	"github.com/citescout/citescout/internal/scholar"
)

// Wire shapes tolerate the Graph API's loose typing: ids may be null,
// externalIds values may be strings, numbers, or lists.

type wireAuthor struct {
	AuthorID      string `json:"authorId"`
	Name          string `json:"name"`
	CitationCount int    `json:"citationCount"`
	PaperCount    int    `json:"paperCount"`
}

func (a wireAuthor) toRaw() scholar.RawAuthor {
	return scholar.RawAuthor{
		AuthorID:      a.AuthorID,
		Name:          a.Name,
		CitationCount: a.CitationCount,
		PaperCount:    a.PaperCount,
	}
}

type wirePaper struct {
	PaperID       string                     `json:"paperId"`
	Title         string                     `json:"title"`
	Year          *int                       `json:"year"`
	Venue         string                     `json:"venue"`
	CitationCount *int                       `json:"citationCount"`
	Authors       []scholar.RawPaperAuthor   `json:"authors"`
	ExternalIDs   map[string]json.RawMessage `json:"externalIds"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

func (p wirePaper) toRaw() scholar.RawPaper {
	raw := scholar.RawPaper{
		PaperID:       p.PaperID,
		Title:         p.Title,
		Year:          p.Year,
		Venue:         p.Venue,
		CitationCount: p.CitationCount,
		Authors:       p.Authors,
	}
	if len(p.ExternalIDs) > 0 {
		raw.ExternalIDs = make(map[string]string, len(p.ExternalIDs))
		for key, val := range p.ExternalIDs {
			if s, ok := stringifyExternalID(val); ok {
				raw.ExternalIDs[key] = s
			}
		}
	}
	if p.OpenAccessPDF != nil {
		raw.OpenAccessPDF = p.OpenAccessPDF.URL
	}
	return raw
}

func stringifyExternalID(val json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(val, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(val, &n); err == nil {
		return n.String(), true
	}
	var f float64
	if err := json.Unmarshal(val, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}
