package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mmcdole/hddsync/internal/domain"
)

// Credentials identify the user whose playlist is mirrored
type Credentials struct {
	UserID   string
	Username string
	Password string
}

// Authenticate logs in with username/password and returns the access token.
// The token is returned rather than stored; callers pass it to FetchPlaylist.
func (c *Client) Authenticate(ctx context.Context) (domain.Token, error) {
	bodyBytes, err := json.Marshal(AuthRequest{
		Username: c.creds.Username,
		Pw:       c.creds.Password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.endpoint("/Users/AuthenticateByName")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(authHeader, buildAuthHeader(c.creds.UserID, "")) // No token yet

	c.logger.Debug("emby auth request", "url", url, "user", c.creds.Username)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("emby auth request failed", "error", err)
		return "", fmt.Errorf("%w: %w", domain.ErrAuthFailed, domain.ErrServerOffline)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %w", domain.ErrAuthFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("emby auth error", "status", resp.StatusCode, "body", string(respBody))
		return "", fmt.Errorf("%w: status %d", domain.ErrAuthFailed, resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %w", domain.ErrAuthFailed, err)
	}
	if authResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrAuthFailed)
	}

	c.logger.Debug("emby auth succeeded", "user_id", authResp.User.ID)
	return domain.Token(authResp.AccessToken), nil
}

// buildAuthHeader constructs the X-Emby-Authorization header
func buildAuthHeader(userID string, token domain.Token) string {
	parts := []string{
		`Emby Client="hddsync"`,
		`Device="hddsync"`,
		`DeviceId="hddsync-daemon"`,
		fmt.Sprintf(`Version="%s"`, clientVersion),
	}

	if userID != "" {
		parts = append(parts, fmt.Sprintf(`UserId="%s"`, userID))
	}

	if token != "" {
		parts = append(parts, fmt.Sprintf(`Token="%s"`, token))
	}

	return strings.Join(parts, ", ")
}
