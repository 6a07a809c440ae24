package emby

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/hddsync/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	clientVersion  = "1.0.0"

	authHeader  = "X-Emby-Authorization"
	tokenHeader = "X-Emby-Token"
)

// Client implements domain.PlaylistSource for Emby and Jellyfin servers.
// Both speak the same API; Emby mounts it under /emby.
type Client struct {
	baseURL    string
	apiPrefix  string
	playlistID string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithAPIPrefix overrides the path prefix ("/emby" by default, "" for Jellyfin)
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) {
		c.apiPrefix = strings.TrimRight(prefix, "/")
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a new Emby API client for one playlist
func NewClient(baseURL, playlistID string, creds Credentials, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiPrefix:  "/emby",
		playlistID: playlistID,
		creds:      creds,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// endpoint joins the base URL, API prefix and path
func (c *Client) endpoint(path string) string {
	return c.baseURL + c.apiPrefix + path
}

// FetchPlaylist returns the playlist's entries keyed by item ID.
// A non-200 response aborts with ErrFetchFailed; there is no retry.
func (c *Client) FetchPlaylist(ctx context.Context, token domain.Token) (map[string]domain.PlaylistEntry, error) {
	query := url.Values{}
	query.Set("Fields", "Path")
	if c.creds.UserID != "" {
		query.Set("UserId", c.creds.UserID)
	}

	reqURL := fmt.Sprintf("%s?%s", c.endpoint("/Playlists/"+url.PathEscape(c.playlistID)+"/Items"), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(authHeader, buildAuthHeader(c.creds.UserID, token))
	req.Header.Set(tokenHeader, string(token))

	c.logger.Debug("emby request", "method", http.MethodGet, "url", reqURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("emby request failed", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, domain.ErrServerOffline)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", domain.ErrFetchFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("emby request error", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: status %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	var itemsResp ItemsResponse
	if err := json.Unmarshal(body, &itemsResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", domain.ErrFetchFailed, err)
	}

	return c.mapEntries(itemsResp.Items), nil
}

// mapEntries indexes entries by ID, skipping ones without an ID or a file path
func (c *Client) mapEntries(items []domain.PlaylistEntry) map[string]domain.PlaylistEntry {
	entries := make(map[string]domain.PlaylistEntry, len(items))
	for _, item := range items {
		if item.ID == "" {
			c.logger.Warn("skipping playlist item without id")
			continue
		}
		if item.Path == "" {
			c.logger.Warn("skipping playlist item without path", "id", item.ID)
			continue
		}
		entries[item.ID] = item
	}
	return entries
}
