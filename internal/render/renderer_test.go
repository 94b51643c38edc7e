package render

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citescout/citescout/internal/scholar"
	"github.com/citescout/citescout/internal/storage/memory"
)

func intp(v int) *int { return &v }

func sampleReport() Report {
	return Report{
		JobID:      "job-1",
		AuthorID:   "1754053",
		AuthorName: "Ada Lovelace",
		Records: []scholar.PublicationRecord{
			{
				Title:         "Notes on the Analytical Engine",
				Authors:       []string{"Ada Lovelace"},
				Venue:         "Taylor's Scientific Memoirs",
				Year:          intp(1843),
				CitationCount: 2000,
				PDFURL:        "https://host/notes.pdf",
				SourceID:      "p1",
			},
			{
				Title:    "Untraceable Manuscript",
				SourceID: "p2",
			},
		},
		Dropped:     1,
		Warning:     "served 1 page from stale cache",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderWritesBothArtifacts(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	r := NewRenderer(store, "reports")

	artifacts, err := r.Render(context.Background(), sampleReport())
	require.NoError(t, err)
	require.Equal(t, "memory://reports/job-1/checklist.html", artifacts.ChecklistURI)
	require.Equal(t, "memory://reports/job-1/debug.json", artifacts.DebugURI)

	html, ok := store.GetObject("reports/job-1/checklist.html")
	require.True(t, ok)
	body := string(html)
	require.Contains(t, body, "Notes on the Analytical Engine")
	require.Contains(t, body, "https://host/notes.pdf")
	require.Contains(t, body, "served 1 page from stale cache")
	// Record without a PDF links to its landing page.
	require.Contains(t, body, "https://www.semanticscholar.org/paper/untraceable-manuscript/p2")

	debug, ok := store.GetObject("reports/job-1/debug.json")
	require.True(t, ok)
	var decoded Report
	require.NoError(t, json.Unmarshal(debug, &decoded))
	require.Equal(t, "job-1", decoded.JobID)
	require.Len(t, decoded.Records, 2)
	require.Equal(t, 1, decoded.Dropped)
}

func TestRenderEscapesTitles(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	r := NewRenderer(store, "reports")

	report := sampleReport()
	report.Records[0].Title = `<script>alert("x")</script>`
	_, err := r.Render(context.Background(), report)
	require.NoError(t, err)

	html, _ := store.GetObject("reports/job-1/checklist.html")
	require.NotContains(t, string(html), "<script>alert")
}

type failingStore struct {
	failOn string
}

func (s *failingStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.HasSuffix(path, s.failOn) {
		return "", errors.New("store unavailable")
	}
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	return "fake://" + path, nil
}

func TestRenderChecklistFailureFailsJob(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&failingStore{failOn: "checklist.html"}, "reports")
	_, err := r.Render(context.Background(), sampleReport())
	require.Error(t, err)
}

func TestRenderDebugFailureIsTolerated(t *testing.T) {
	t.Parallel()

	r := NewRenderer(&failingStore{failOn: "debug.json"}, "reports")
	artifacts, err := r.Render(context.Background(), sampleReport())
	require.NoError(t, err)
	require.NotEmpty(t, artifacts.ChecklistURI)
	require.Empty(t, artifacts.DebugURI)
}
