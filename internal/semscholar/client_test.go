package semscholar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/resilience"
	"github.com/citescout/citescout/internal/scholar"
)

type stubClock struct{ now time.Time }

func (s stubClock) Now() time.Time { return s.now }

func newTestClient(t *testing.T, serverURL string, maxAttempts int) *Client {
	t.Helper()
	cache := resilience.NewCache(time.Hour, 0, stubClock{now: time.Now()})
	res := resilience.NewClient(scholar.NewExponentialRetryPolicy(maxAttempts, time.Millisecond, 2*time.Millisecond), cache, zap.NewNop())
	return New(Config{
		BaseURL:       serverURL,
		APIKey:        "test-key",
		Timeout:       5 * time.Second,
		RatePerSecond: 1000,
		RateBurst:     1000,
	}, res, zap.NewNop())
}

func TestAuthorFetch(t *testing.T) {
	t.Parallel()

	var gotKey atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("x-api-key"))
		require.Equal(t, "/author/1754053", r.URL.Path)
		w.Write([]byte(`{"authorId":"1754053","name":"Ada Lovelace","citationCount":120,"paperCount":9}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	author, err := client.Author(context.Background(), "1754053")
	require.NoError(t, err)
	require.Equal(t, "1754053", author.AuthorID)
	require.Equal(t, "Ada Lovelace", author.Name)
	require.Equal(t, 120, author.CitationCount)
	require.Equal(t, "test-key", gotKey.Load())
}

func TestAuthorNotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such author", http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 5)
	_, err := client.Author(context.Background(), "999")
	require.ErrorIs(t, err, scholar.ErrNotFound)
	require.Equal(t, int32(1), calls.Load(), "404 must not be retried")
}

func TestRateLimitExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 3)
	_, err := client.Author(context.Background(), "1754053")
	require.ErrorIs(t, err, scholar.ErrRateLimited)
	require.Equal(t, int32(3), calls.Load())
}

func TestRateLimitThenRecovers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"authorId":"1","name":"A"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 5)
	author, err := client.Author(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "1", author.AuthorID)
	require.Equal(t, int32(3), calls.Load())
}

func TestSearchAuthors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/author/search", r.URL.Path)
		require.Equal(t, "jane doe", r.URL.Query().Get("query"))
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data":[
			{"authorId":"1","name":"Jane Doe","citationCount":50},
			{"authorId":"2","name":"Jane A. Doe","citationCount":900}
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	authors, err := client.SearchAuthors(context.Background(), "jane doe", 5)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	require.Equal(t, 900, authors[1].CitationCount)
}

func TestPapersPageDecoding(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/author/1/papers", r.URL.Path)
		require.Equal(t, "0", r.URL.Query().Get("offset"))
		require.Equal(t, "100", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"offset":0,"next":100,"data":[
			{
				"paperId":"p1","title":"Deep Nets","year":2019,"venue":"NeurIPS",
				"citationCount":421,
				"authors":[{"authorId":"1","name":"Jane Doe"}],
				"externalIds":{"DOI":"10.1000/xyz","ArXiv":"1901.00001","CorpusId":12345},
				"openAccessPdf":{"url":"https://host/p1.pdf"}
			},
			{"paperId":"p2","title":"Untyped","year":null,"citationCount":null}
		]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	page, err := client.Papers(context.Background(), "1", 0, 100)
	require.NoError(t, err)
	require.False(t, page.Stale)
	require.NotNil(t, page.Next)
	require.Equal(t, 100, *page.Next)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	require.Equal(t, "10.1000/xyz", first.ExternalIDs["DOI"])
	require.Equal(t, "1901.00001", first.ExternalIDs["ArXiv"])
	require.Equal(t, "12345", first.ExternalIDs["CorpusId"])
	require.Equal(t, "https://host/p1.pdf", first.OpenAccessPDF)

	second := page.Items[1]
	require.Nil(t, second.Year)
	require.Nil(t, second.CitationCount)
}

func TestPapersCachedSecondFetch(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"offset":0,"next":null,"data":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, 1)
	_, err := client.Papers(context.Background(), "1", 0, 100)
	require.NoError(t, err)
	_, err = client.Papers(context.Background(), "1", 0, 100)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load(), "identical page fetch must hit the cache")
}
