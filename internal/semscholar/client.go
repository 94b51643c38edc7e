// Package semscholar implements the upstream publication source against the
// Semantic Scholar Graph API.
package semscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/citescout/citescout/internal/resilience"
	"github.com/citescout/citescout/internal/scholar"
)

const (
	authorFields = "name,citationCount,paperCount"
	paperFields  = "title,year,venue,citationCount,authors,externalIds,openAccessPdf"
)

// Config controls the upstream client.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
}

// Client talks to the Graph API through the resilience layer and a
// client-side rate limiter shared by all workers.
type Client struct {
	cfg     Config
	httpc   *http.Client
	limiter *rate.Limiter
	res     *resilience.Client
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, res *resilience.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		res:     res,
		logger:  logger,
	}
}

// Author fetches an author by canonical id.
func (c *Client) Author(ctx context.Context, authorID string) (scholar.RawAuthor, error) {
	endpoint := fmt.Sprintf("%s/author/%s?fields=%s", c.cfg.BaseURL, url.PathEscape(authorID), authorFields)
	payload, _, err := c.res.Do(ctx, endpoint, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return scholar.RawAuthor{}, err
	}
	var author wireAuthor
	if err := json.Unmarshal(payload, &author); err != nil {
		return scholar.RawAuthor{}, fmt.Errorf("%w: decode author: %v", scholar.ErrUpstream, err)
	}
	return author.toRaw(), nil
}

// SearchAuthors runs a name search and returns up to limit candidates.
func (c *Client) SearchAuthors(ctx context.Context, name string, limit int) ([]scholar.RawAuthor, error) {
	q := url.Values{}
	q.Set("query", name)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", authorFields)
	endpoint := c.cfg.BaseURL + "/author/search?" + q.Encode()
	payload, _, err := c.res.Do(ctx, endpoint, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	var body struct {
		Data []wireAuthor `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: decode author search: %v", scholar.ErrUpstream, err)
	}
	authors := make([]scholar.RawAuthor, 0, len(body.Data))
	for _, a := range body.Data {
		authors = append(authors, a.toRaw())
	}
	return authors, nil
}

// Papers fetches one page of the author's publications. The stale flag on
// the returned page is set when the resilience layer fell back to an
// expired cache entry.
func (c *Client) Papers(ctx context.Context, authorID string, offset, limit int) (scholar.PapersPage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", paperFields)
	endpoint := fmt.Sprintf("%s/author/%s/papers?%s", c.cfg.BaseURL, url.PathEscape(authorID), q.Encode())
	payload, stale, err := c.res.Do(ctx, endpoint, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		return scholar.PapersPage{}, err
	}
	var body struct {
		Offset int         `json:"offset"`
		Next   *int        `json:"next"`
		Data   []wirePaper `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return scholar.PapersPage{}, fmt.Errorf("%w: decode papers page: %v", scholar.ErrUpstream, err)
	}
	page := scholar.PapersPage{
		Items:  make([]scholar.RawPaper, 0, len(body.Data)),
		Offset: body.Offset,
		Next:   body.Next,
		Stale:  stale,
	}
	for _, p := range body.Data {
		page.Items = append(page.Items, p.toRaw())
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", scholar.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("x-api-key", c.cfg.APIKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", scholar.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", scholar.ErrUpstream, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", scholar.ErrNotFound, endpoint)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status 429", scholar.ErrRateLimited)
	default:
		return nil, fmt.Errorf("%w: status %d", scholar.ErrUpstream, resp.StatusCode)
	}
}
