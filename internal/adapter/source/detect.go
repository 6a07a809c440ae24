package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/domain"
)

// systemInfo is the unauthenticated /System/Info/Public response
type systemInfo struct {
	ProductName string `json:"ProductName"`
	ServerName  string `json:"ServerName"`
	Version     string `json:"Version"`
	ID          string `json:"Id"`
}

// DetectServerType probes serverURL to tell Emby from Jellyfin.
// Both answer /System/Info/Public; the product name tells them apart.
func DetectServerType(ctx context.Context, client *http.Client, serverURL string) (adapter.SourceType, error) {
	serverURL = strings.TrimRight(serverURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/System/Info/Public", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrServerOffline, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var info systemInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	product := strings.ToLower(info.ProductName)
	switch {
	case strings.Contains(product, "jellyfin"):
		return adapter.SourceTypeJellyfin, nil
	case strings.Contains(product, "emby"):
		return adapter.SourceTypeEmby, nil
	default:
		return "", fmt.Errorf("unrecognized server (ProductName: %q)", info.ProductName)
	}
}
