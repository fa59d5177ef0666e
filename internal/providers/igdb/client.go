// Package igdb implements the upstream catalog provider client. The provider
// speaks a POST query-body protocol, authenticates with an app token, caps
// page sizes, and meters request rates, so the client carries its own rate
// limiter and pages explicitly when a caller wants more than one page.
package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"playshelf/catalogsearch/internal/domain"
	"playshelf/catalogsearch/internal/metrics"
)

const (
	defaultBaseURL  = "https://api.igdb.com/v4"
	defaultPageSize = 500
	defaultRPS      = 4
)

const gameFields = "id,name,game_type,category,parent_game,version_parent," +
	"first_release_date,summary,cover.url,franchises.name"

type Config struct {
	ClientID string
	BaseURL  string
	Client   *http.Client
	Tokens   TokenSource
	// RequestsPerSecond throttles all calls; the provider meters quota.
	RequestsPerSecond float64
	// PageSize is the provider's page cap for a single request.
	PageSize int
}

type Client struct {
	clientID string
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	limiter  *rate.Limiter
	pageSize int
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		clientID: strings.TrimSpace(cfg.ClientID),
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		tokens:   cfg.Tokens,
		limiter:  rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		pageSize: pageSize,
	}
}

type gameRecord struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	GameType         *int   `json:"game_type,omitempty"`
	Category         *int   `json:"category,omitempty"`
	ParentGame       *int64 `json:"parent_game,omitempty"`
	VersionParent    *int64 `json:"version_parent,omitempty"`
	FirstReleaseDate int64  `json:"first_release_date,omitempty"`
	Summary          string `json:"summary,omitempty"`
	Cover            *struct {
		URL string `json:"url"`
	} `json:"cover,omitempty"`
	Franchises []struct {
		Name string `json:"name"`
	} `json:"franchises,omitempty"`
}

// SearchTitles fetches up to limit records for a free-text query. When limit
// exceeds the provider page cap it loops with explicit offsets until the
// target is reached or a short page signals exhaustion.
func (c *Client) SearchTitles(ctx context.Context, query string, limit int) ([]domain.CatalogEntry, error) {
	if limit <= 0 {
		limit = c.pageSize
	}

	entries := make([]domain.CatalogEntry, 0, limit)
	for offset := 0; len(entries) < limit; {
		pageLimit := limit - len(entries)
		if pageLimit > c.pageSize {
			pageLimit = c.pageSize
		}
		body := fmt.Sprintf("fields %s; search %s; limit %d; offset %d;",
			gameFields, quote(query), pageLimit, offset)

		var page []gameRecord
		if err := c.post(ctx, "search", "/games", body, &page); err != nil {
			return nil, err
		}
		for _, record := range page {
			if entry, ok := toEntry(record); ok {
				entries = append(entries, entry)
			}
		}
		if len(page) < pageLimit {
			break
		}
		offset += len(page)
	}
	return entries, nil
}

// CountByFranchise returns the provider's total title count for a franchise.
func (c *Client) CountByFranchise(ctx context.Context, name string) (int, error) {
	body := fmt.Sprintf("where franchises.name ~ %s;", quote(name))
	var result struct {
		Count int `json:"count"`
	}
	if err := c.post(ctx, "count", "/games/count", body, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// ByIDs fetches specific records by external id list.
func (c *Client) ByIDs(ctx context.Context, ids []int64) ([]domain.CatalogEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	body := fmt.Sprintf("fields %s; where id = (%s); limit %d;",
		gameFields, strings.Join(parts, ","), len(ids))

	var records []gameRecord
	if err := c.post(ctx, "byIds", "/games", body, &records); err != nil {
		return nil, err
	}
	entries := make([]domain.CatalogEntry, 0, len(records))
	for _, record := range records {
		if entry, ok := toEntry(record); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (c *Client) post(ctx context.Context, operation, path, body string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("igdb token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("igdb %s returned status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "error").Inc()
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(operation, "malformed").Inc()
		return fmt.Errorf("igdb %s payload: %w", operation, err)
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return nil
}

// toEntry normalizes a provider record into the cached projection. Records
// without an id or name are dropped.
func toEntry(record gameRecord) (domain.CatalogEntry, bool) {
	title := strings.TrimSpace(record.Name)
	if record.ID == 0 || title == "" {
		return domain.CatalogEntry{}, false
	}
	entry := domain.CatalogEntry{
		ExternalID:      record.ID,
		Title:           title,
		TypeCode:        record.GameType,
		CategoryCode:    record.Category,
		ParentID:        record.ParentGame,
		VersionParentID: record.VersionParent,
		Summary:         strings.TrimSpace(record.Summary),
	}
	if record.FirstReleaseDate > 0 {
		entry.ReleaseYear = time.Unix(record.FirstReleaseDate, 0).UTC().Year()
	}
	for _, franchise := range record.Franchises {
		if name := strings.TrimSpace(franchise.Name); name != "" {
			entry.FranchiseNames = append(entry.FranchiseNames, name)
		}
	}
	if record.Cover != nil {
		entry.CoverURL = normalizeCoverURL(record.Cover.URL)
	}
	return entry, true
}

// normalizeCoverURL upgrades the provider's protocol-relative image URLs.
func normalizeCoverURL(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "//") {
		return "https:" + value
	}
	return value
}

// quote wraps a free-text value for the provider's query syntax.
func quote(value string) string {
	escaped := strings.ReplaceAll(strings.TrimSpace(value), `"`, `\"`)
	return `"` + escaped + `"`
}
