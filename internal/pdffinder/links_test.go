package pdffinder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBestLinkPrefersDirectPDF(t *testing.T) {
	t.Parallel()

	got := BestLink([]string{
		"https://arxiv.org/abs/1901.00001",
		"https://host.example/paper.pdf",
		"https://doi.org/10.1/x",
	})
	require.Equal(t, "https://host.example/paper.pdf", got)
}

func TestBestLinkConvertsArxivAbstract(t *testing.T) {
	t.Parallel()

	got := BestLink([]string{
		"https://doi.org/10.1/x",
		"https://arxiv.org/abs/1901.00001v3",
	})
	require.Equal(t, "https://arxiv.org/pdf/1901.00001.pdf", got)
}

func TestBestLinkEmptyWhenNothingQualifies(t *testing.T) {
	t.Parallel()

	require.Empty(t, BestLink([]string{"https://doi.org/10.1/x", "", "  "}))
	require.Empty(t, BestLink(nil))
}

func TestIsDirectPDF(t *testing.T) {
	t.Parallel()

	require.True(t, IsDirectPDF("https://host/a/b/paper.PDF"))
	require.True(t, IsDirectPDF("https://host/paper.pdf?download=1"))
	require.False(t, IsDirectPDF("https://host/paper.pdf.html"))
	require.False(t, IsDirectPDF("://bad"))
}

func TestArxivIDFromURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1901.00001", arxivIDFromURL("https://arxiv.org/abs/1901.00001?context=cs"))
	require.Empty(t, arxivIDFromURL("https://arxiv.org/pdf/1901.00001.pdf"))
	require.Empty(t, arxivIDFromURL("https://other.org/abs/1901.00001"))
}

func TestNoopFindsNothing(t *testing.T) {
	t.Parallel()

	link, err := Noop{}.Find(context.Background(), "p1", "Title")
	require.NoError(t, err)
	require.Empty(t, link)
}
