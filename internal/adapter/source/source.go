package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/adapter/source/emby"
	"github.com/mmcdole/hddsync/internal/domain"
)

// NewPlaylistSource creates the remote playlist fetcher for the configured server type.
// Emby and Jellyfin share one client; only the API prefix differs.
func NewPlaylistSource(cfg *adapter.EmbyConfig, logger *slog.Logger) (domain.PlaylistSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("source config is nil")
	}

	if cfg.Server == "" {
		return nil, fmt.Errorf("server URL is required")
	}

	if cfg.PlaylistID == "" {
		return nil, fmt.Errorf("playlist ID is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case adapter.SourceTypeEmby, adapter.SourceTypeJellyfin, "":
		return newClient(cfg, cfg.Type, logger), nil
	case adapter.SourceTypeAuto:
		return &autoSource{cfg: cfg, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown server type: %s", cfg.Type)
	}
}

func newClient(cfg *adapter.EmbyConfig, serverType adapter.SourceType, logger *slog.Logger) *emby.Client {
	creds := emby.Credentials{
		UserID:   cfg.UserID,
		Username: cfg.UserName,
		Password: cfg.UserPass,
	}

	opts := []emby.Option{emby.WithTimeout(cfg.Timeout)}
	if serverType == adapter.SourceTypeJellyfin {
		opts = append(opts, emby.WithAPIPrefix(""))
	}
	return emby.NewClient(cfg.Server, cfg.PlaylistID, creds, logger, opts...)
}

// autoSource detects the server type on first authentication and then
// delegates to the matching client. A failed probe is retried next cycle.
type autoSource struct {
	cfg        *adapter.EmbyConfig
	httpClient *http.Client // nil uses a client with cfg.Timeout
	logger     *slog.Logger

	mu     sync.Mutex
	client *emby.Client
}

func (a *autoSource) resolve(ctx context.Context) (*emby.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}

	hc := a.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: a.cfg.Timeout}
	}
	serverType, err := DetectServerType(ctx, hc, a.cfg.Server)
	if err != nil {
		return nil, err
	}

	a.logger.Info("detected media server", "type", serverType, "server", a.cfg.Server)
	a.client = newClient(a.cfg, serverType, a.logger)
	if a.httpClient != nil {
		emby.WithHTTPClient(a.httpClient)(a.client)
	}
	return a.client, nil
}

func (a *autoSource) Authenticate(ctx context.Context) (domain.Token, error) {
	client, err := a.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAuthFailed, err)
	}
	return client.Authenticate(ctx)
}

func (a *autoSource) FetchPlaylist(ctx context.Context, token domain.Token) (map[string]domain.PlaylistEntry, error) {
	client, err := a.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFetchFailed, err)
	}
	return client.FetchPlaylist(ctx, token)
}
