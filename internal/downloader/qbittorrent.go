package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QBittorrentConfig contains connection settings for a qBittorrent Web UI.
type QBittorrentConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseSSL   bool
	Category string
	Logger   zerolog.Logger
}

// QBittorrent implements Client against the qBittorrent Web API (v2).
//
// Every torrent this service adds is tagged with a UUID job handle;
// ListActive recovers the handle from the tag, so reconciliation survives
// restarts of either side.
type QBittorrent struct {
	baseURL    string
	category   string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger

	loginMu  sync.Mutex
	loggedIn bool
}

var _ Client = (*QBittorrent)(nil)

// NewQBittorrent creates a qBittorrent client.
func NewQBittorrent(cfg QBittorrentConfig) (*QBittorrent, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	category := cfg.Category
	if category == "" {
		category = "driftwood"
	}

	jar, _ := cookiejar.New(nil)

	return &QBittorrent{
		baseURL:  fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port),
		category: category,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		logger: cfg.Logger.With().Str("component", "qbittorrent").Logger(),
	}, nil
}

// login authenticates and stores the session cookie in the jar.
func (c *QBittorrent) login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn {
		return nil
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("%w: status %d", ErrAuthFailed, resp.StatusCode)
	}

	c.loggedIn = true
	c.logger.Debug().Msg("logged in")
	return nil
}

// doForm posts a form to the API, logging in first and retrying once when
// the session has expired.
func (c *QBittorrent) doForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}

		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			c.loginMu.Lock()
			c.loggedIn = false
			c.loginMu.Unlock()
			if err := c.login(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	}
}

// Fetch adds a release by URL (magnet or torrent link) and returns the job
// handle the torrent was tagged with.
func (c *QBittorrent) Fetch(ctx context.Context, sourceRef, title string) (string, error) {
	jobID := uuid.NewString()

	form := url.Values{}
	form.Set("urls", sourceRef)
	form.Set("category", c.category)
	form.Set("tags", jobID)
	if title != "" {
		form.Set("rename", title)
	}

	body, err := c.doForm(ctx, "/api/v2/torrents/add", form)
	if err != nil {
		return "", fmt.Errorf("failed to add download: %w", err)
	}
	if strings.TrimSpace(string(body)) == "Fails." {
		return "", fmt.Errorf("download client refused %q", title)
	}

	c.logger.Info().Str("jobId", jobID).Str("title", title).Msg("Added download")
	return jobID, nil
}

// torrentInfo is the wire shape of /api/v2/torrents/info entries.
type torrentInfo struct {
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	SavePath string  `json:"save_path"`
	Tags     string  `json:"tags"`
}

// ListActive returns the torrents in this service's category.
func (c *QBittorrent) ListActive(ctx context.Context) ([]DownloadItem, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/api/v2/torrents/info?category=" + url.QueryEscape(c.category)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list failed with status %d", resp.StatusCode)
	}

	var torrents []torrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrent list: %w", err)
	}

	items := make([]DownloadItem, 0, len(torrents))
	for _, t := range torrents {
		jobID := jobIDFromTags(t.Tags)
		if jobID == "" {
			// Not started by this service.
			continue
		}
		status := mapState(t.State)
		item := DownloadItem{
			JobID:    jobID,
			Title:    t.Name,
			Status:   status,
			Progress: t.Progress,
			SavePath: t.SavePath,
		}
		// qBittorrent reports no error detail beyond the state name, so
		// surface that to the failure record.
		if status == StatusError {
			item.Message = "client reported state " + t.State
		}
		items = append(items, item)
	}
	return items, nil
}

// jobIDFromTags picks our UUID handle out of the comma-separated tag list.
func jobIDFromTags(tags string) string {
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		if _, err := uuid.Parse(tag); err == nil {
			return tag
		}
	}
	return ""
}

func mapState(state string) Status {
	switch state {
	case "error", "missingFiles":
		return StatusError
	case "uploading", "stalledUP", "queuedUP", "forcedUP", "checkingUP", "pausedUP", "stoppedUP":
		return StatusCompleted
	case "queuedDL", "pausedDL", "stoppedDL", "allocating":
		return StatusQueued
	default:
		// downloading, metaDL, stalledDL, checkingDL, forcedDL, moving, ...
		return StatusDownloading
	}
}
