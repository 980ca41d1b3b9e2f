package indexer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/quality"
)

const (
	defaultTimeout = 90 * time.Second
	//nolint:gosec // header name constant, not a credential
	apiKeyHeader = "X-Api-Key"
)

// Client provides HTTP communication with the release index server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config contains configuration for creating a new index client.
type Config struct {
	URL           string
	APIKey        string
	Timeout       int
	SkipSSLVerify bool
	Logger        zerolog.Logger
}

// NewClient creates a new index HTTP client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	transport := &http.Transport{}
	if cfg.SkipSSLVerify {
		//nolint:gosec // admin-configured endpoint, TLS verification optional
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	logger := cfg.Logger.With().
		Str("component", "indexer-client").
		Str("url", baseURL).
		Logger()

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// doJSON executes a GET request with the API key header and decodes the
// JSON response.
func (c *Client) doJSON(ctx context.Context, op, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	c.logger.Debug().Str("op", op).Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error().
			Str("op", op).
			Int("status", resp.StatusCode).
			Msg("request returned error status")
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// searchResult is the wire shape of a single search result.
type searchResult struct {
	GUID        string `json:"guid"`
	Title       string `json:"title"`
	Size        int64  `json:"size"`
	Indexer     string `json:"indexer"`
	DownloadURL string `json:"downloadUrl"`
	Seeders     int    `json:"seeders"`
	PublishDate string `json:"publishDate"`
	Protocol    string `json:"protocol"`
}

// Search executes a search and tags each result with the quality level
// guessed from its title.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]CandidateRelease, error) {
	path := "/api/v1/search?" + buildSearchParams(req).Encode()

	var results []searchResult
	if err := c.doJSON(ctx, "search", path, &results); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	candidates := make([]CandidateRelease, 0, len(results))
	for _, r := range results {
		candidate := CandidateRelease{
			Title:     r.Title,
			SourceRef: r.DownloadURL,
			Indexer:   r.Indexer,
			QualityID: quality.GuessLevel(req.MediaType, r.Title),
			Size:      r.Size,
			Seeders:   r.Seeders,
		}
		if t, err := time.Parse(time.RFC3339, r.PublishDate); err == nil {
			candidate.PublishDate = t
		}
		candidates = append(candidates, candidate)
	}

	c.logger.Info().
		Str("query", req.Query).
		Int("results", len(candidates)).
		Msg("search completed")

	return candidates, nil
}

func buildSearchParams(req SearchRequest) url.Values {
	params := url.Values{}
	if req.Query != "" {
		params.Set("query", req.Query)
	}
	switch req.MediaType {
	case quality.MediaTypeMovie:
		params.Set("type", "movie")
		params.Add("categories", strconv.Itoa(categoryMovies))
	case quality.MediaTypeEpisode:
		params.Set("type", "tvsearch")
		params.Add("categories", strconv.Itoa(categoryTV))
	case quality.MediaTypeBook:
		params.Set("type", "book")
		params.Add("categories", strconv.Itoa(categoryBooks))
	default:
		params.Set("type", "search")
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	return params
}

// indexerResponse is the wire shape of a configured indexer.
type indexerResponse struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Priority int    `json:"priority"`
	Enable   bool   `json:"enable"`
	Status   *struct {
		IsDisabled bool `json:"isDisabled"`
	} `json:"status,omitempty"`
}

// Indexers fetches the list of indexers configured upstream. Each search
// pass calls this first to refresh health state.
func (c *Client) Indexers(ctx context.Context) ([]IndexerInfo, error) {
	var raw []indexerResponse
	if err := c.doJSON(ctx, "indexers", "/api/v1/indexer", &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch indexers: %w", err)
	}

	infos := make([]IndexerInfo, 0, len(raw))
	for _, idx := range raw {
		info := IndexerInfo{
			ID:       idx.ID,
			Name:     idx.Name,
			Protocol: idx.Protocol,
			Priority: idx.Priority,
			Enabled:  idx.Enable,
			Healthy:  true,
		}
		if idx.Status != nil && idx.Status.IsDisabled {
			info.Healthy = false
		}
		infos = append(infos, info)
	}

	c.logger.Debug().Int("count", len(infos)).Msg("fetched indexers")
	return infos, nil
}

// Status checks connectivity by fetching system status.
func (c *Client) Status(ctx context.Context) *ConnectionStatus {
	var status struct {
		Version string `json:"version"`
	}
	err := c.doJSON(ctx, "status", "/api/v1/system/status", &status)
	now := time.Now()

	result := &ConnectionStatus{
		Connected:   err == nil,
		Version:     status.Version,
		LastChecked: &now,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}
