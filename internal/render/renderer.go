// Package render produces the job artifacts: an interactive HTML checklist
// and a JSON debug report, persisted through a BlobStore.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"path"
	"time"

	"github.com/citescout/citescout/internal/normalize"
	"github.com/citescout/citescout/internal/scholar"
)

// Report carries everything the artifacts are rendered from.
type Report struct {
	JobID       string                      `json:"job_id"`
	AuthorID    string                      `json:"author_id"`
	AuthorName  string                      `json:"author_name,omitempty"`
	Records     []scholar.PublicationRecord `json:"records"`
	Dropped     int                         `json:"dropped_records,omitempty"`
	Partial     bool                        `json:"partial,omitempty"`
	Warning     string                      `json:"warning,omitempty"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// Renderer writes checklist and debug artifacts for completed jobs.
type Renderer struct {
	store  scholar.BlobStore
	prefix string
}

// NewRenderer builds a Renderer writing under the given path prefix.
func NewRenderer(store scholar.BlobStore, prefix string) *Renderer {
	if prefix == "" {
		prefix = "reports"
	}
	return &Renderer{store: store, prefix: prefix}
}

// Render persists both artifacts and returns their URIs. The checklist is
// always written; a debug report failure does not fail the job, the
// artifact is simply absent.
func (r *Renderer) Render(ctx context.Context, report Report) (scholar.Artifacts, error) {
	var artifacts scholar.Artifacts

	checklist, err := r.checklistHTML(report)
	if err != nil {
		return artifacts, fmt.Errorf("render checklist: %w", err)
	}
	checklistURI, err := r.store.PutObject(ctx,
		path.Join(r.prefix, report.JobID, "checklist.html"),
		"text/html; charset=utf-8",
		bytes.NewReader(checklist),
	)
	if err != nil {
		return artifacts, fmt.Errorf("store checklist: %w", err)
	}
	artifacts.ChecklistURI = checklistURI

	debug, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return artifacts, nil
	}
	debugURI, err := r.store.PutObject(ctx,
		path.Join(r.prefix, report.JobID, "debug.json"),
		"application/json",
		bytes.NewReader(debug),
	)
	if err != nil {
		return artifacts, nil
	}
	artifacts.DebugURI = debugURI
	return artifacts, nil
}

type checklistRow struct {
	Index     int
	Title     string
	Authors   []string
	Venue     string
	Year      *int
	Citations int
	Link      string
	DirectPDF bool
}

func (r *Renderer) checklistHTML(report Report) ([]byte, error) {
	rows := make([]checklistRow, 0, len(report.Records))
	for i, rec := range report.Records {
		row := checklistRow{
			Index:     i + 1,
			Title:     rec.Title,
			Authors:   rec.Authors,
			Venue:     rec.Venue,
			Year:      rec.Year,
			Citations: rec.CitationCount,
			Link:      rec.PDFURL,
			DirectPDF: rec.PDFURL != "",
		}
		if row.Link == "" {
			row.Link = normalize.PaperURL(rec.SourceID, rec.Title)
		}
		rows = append(rows, row)
	}

	var buf bytes.Buffer
	err := checklistTmpl.Execute(&buf, struct {
		Report Report
		Rows   []checklistRow
	}{Report: report, Rows: rows})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var checklistTmpl = template.Must(template.New("checklist").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Publications - {{if .Report.AuthorName}}{{.Report.AuthorName}}{{else}}{{.Report.AuthorID}}{{end}}</title>
<style>
body { font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; margin: 0; padding: 24px; background: #f4f6fb; }
.container { max-width: 1100px; margin: 0 auto; background: #fff; border-radius: 10px; box-shadow: 0 4px 18px rgba(0,0,0,0.08); padding: 24px; }
h1 { margin-top: 0; font-size: 1.4rem; }
.meta { color: #555; font-size: 0.9rem; margin-bottom: 16px; }
.warning { background: #fff4e5; border: 1px solid #f0c36d; border-radius: 6px; padding: 8px 12px; margin-bottom: 16px; }
table { width: 100%; border-collapse: collapse; }
th, td { text-align: left; padding: 8px 10px; border-bottom: 1px solid #e4e7ee; vertical-align: top; }
th { background: #eef1f8; }
tr.done { opacity: 0.55; text-decoration: line-through; }
.authors { color: #666; font-size: 0.85rem; }
.badge { display: inline-block; background: #e8f0fe; color: #1a56c4; border-radius: 10px; padding: 1px 8px; font-size: 0.8rem; }
</style>
</head>
<body>
<div class="container">
<h1>Publications{{if .Report.AuthorName}} - {{.Report.AuthorName}}{{end}}</h1>
<div class="meta">Author {{.Report.AuthorID}} &middot; {{len .Rows}} papers &middot; generated {{.Report.GeneratedAt.Format "2006-01-02 15:04 MST"}}</div>
{{if .Report.Warning}}<div class="warning">{{.Report.Warning}}</div>{{end}}
<table>
<thead><tr><th></th><th>#</th><th>Paper</th><th>Venue</th><th>Year</th><th>Citations</th><th>Link</th></tr></thead>
<tbody>
{{range .Rows}}<tr>
<td><input type="checkbox" onchange="this.closest('tr').classList.toggle('done', this.checked)"></td>
<td>{{.Index}}</td>
<td>{{.Title}}{{if .Authors}}<div class="authors">{{range $i, $a := .Authors}}{{if $i}}, {{end}}{{$a}}{{end}}</div>{{end}}</td>
<td>{{.Venue}}</td>
<td>{{if .Year}}{{.Year}}{{end}}</td>
<td><span class="badge">{{.Citations}}</span></td>
<td><a href="{{.Link}}" target="_blank" rel="noopener">{{if .DirectPDF}}PDF{{else}}page{{end}}</a></td>
</tr>
{{end}}</tbody>
</table>
</div>
</body>
</html>
`))
