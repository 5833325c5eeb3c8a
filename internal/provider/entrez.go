package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/litsift/litsift/internal/reference"
)

const (
	// EntrezBaseURL is the NCBI E-utilities base URL.
	EntrezBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is 3 requests per second, the NCBI limit without an
	// API key. With a key NCBI allows 10/s; configure via WithRateLimit.
	DefaultRateLimit = 3.0

	// DefaultBatchSize is the detail-fetch chunk size per esummary call.
	DefaultBatchSize = 200

	// DefaultTimeout is the per-request HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

// Entrez is a rate-limited client for a PubMed-style E-utilities API.
type Entrez struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	baseURL    string
	batchSize  int
}

// EntrezOption configures an Entrez client.
type EntrezOption func(*Entrez)

// WithAPIKey sets the API key sent with every request.
func WithAPIKey(key string) EntrezOption {
	return func(c *Entrez) { c.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) EntrezOption {
	return func(c *Entrez) { c.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) EntrezOption {
	return func(c *Entrez) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) EntrezOption {
	return func(c *Entrez) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithBatchSize sets the detail-fetch chunk size.
func WithBatchSize(n int) EntrezOption {
	return func(c *Entrez) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// NewEntrez creates a PubMed search client.
func NewEntrez(opts ...EntrezOption) *Entrez {
	c := &Entrez{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    EntrezBaseURL,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Searcher.
func (c *Entrez) Name() string { return "pubmed" }

// esearchResponse is the known esearch result schema. Unknown fields are
// dropped by the decoder rather than carried as untyped maps.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// SearchIDs implements Searcher using the esearch endpoint.
func (c *Entrez) SearchIDs(ctx context.Context, query string, limit int, f Filters) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", buildTerm(query, f))
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "/esearch.fcgi", params)
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing esearch result: %v", ErrInvalidResponse, err)
	}
	return resp.Result.IDList, nil
}

// buildTerm folds filters into the query term.
func buildTerm(query string, f Filters) string {
	term := query
	if f.Journal != "" {
		term += fmt.Sprintf(" AND %q[Journal]", f.Journal)
	}
	if f.DateRange != "" {
		if from, to, ok := strings.Cut(f.DateRange, ":"); ok {
			term += fmt.Sprintf(" AND %s:%s[dp]", from, to)
		}
	}
	return term
}

// summaryDoc is the known esummary document schema for one article.
type summaryDoc struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	FullJournalName string `json:"fulljournalname"`
	Source          string `json:"source"`
	PubDate         string `json:"pubdate"`
	ArticleIDs      []struct {
		IDType string `json:"idtype"`
		Value  string `json:"value"`
	} `json:"articleids"`
}

// esummaryResponse keeps per-UID documents as raw JSON: the result object
// mixes the "uids" array with one opaque document per UID key.
type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// FetchDetails implements Searcher using the esummary endpoint, chunking
// the ID list at the configured batch size.
func (c *Entrez) FetchDetails(ctx context.Context, ids []string) ([]reference.Record, error) {
	var records []reference.Record
	for start := 0; start < len(ids); start += c.batchSize {
		end := start + c.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := c.fetchChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		records = append(records, chunk...)
	}
	return records, nil
}

func (c *Entrez) fetchChunk(ctx context.Context, ids []string) ([]reference.Record, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "json")

	body, err := c.get(ctx, "/esummary.fcgi", params)
	if err != nil {
		return nil, err
	}

	var resp esummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing esummary result: %v", ErrInvalidResponse, err)
	}

	var uids []string
	if raw, ok := resp.Result["uids"]; ok {
		if err := json.Unmarshal(raw, &uids); err != nil {
			return nil, fmt.Errorf("%w: parsing uid list: %v", ErrInvalidResponse, err)
		}
	}

	records := make([]reference.Record, 0, len(uids))
	for _, uid := range uids {
		raw, ok := resp.Result[uid]
		if !ok {
			continue
		}
		var doc summaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue // skip malformed documents, keep the batch
		}
		records = append(records, mapSummary(doc))
	}
	return records, nil
}

// mapSummary converts an esummary document to a record.
func mapSummary(doc summaryDoc) reference.Record {
	rec := reference.Record{
		Title:      strings.TrimSuffix(doc.Title, "."),
		Journal:    doc.FullJournalName,
		PMID:       doc.UID,
		Source:     reference.SourcePubMed,
		Confidence: 1.0,
	}
	if rec.Journal == "" {
		rec.Journal = doc.Source
	}
	for _, a := range doc.Authors {
		if a.Name != "" {
			rec.Authors = append(rec.Authors, a.Name)
		}
	}
	for _, id := range doc.ArticleIDs {
		switch id.IDType {
		case "doi":
			rec.DOI = id.Value
		case "pmc", "pmcid":
			rec.PMCID = id.Value
		}
	}
	// PubDate looks like "2020 May 12" or "2020".
	if fields := strings.Fields(doc.PubDate); len(fields) > 0 {
		if y, err := strconv.Atoi(fields[0]); err == nil {
			rec.Year = y
		}
	}
	return rec
}

// get performs a rate-limited GET and returns the response body.
func (c *Entrez) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: status 404", ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrNetwork, err)
	}
	return body, nil
}
