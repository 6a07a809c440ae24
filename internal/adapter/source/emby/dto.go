package emby

import "github.com/mmcdole/hddsync/internal/domain"

// AuthRequest is the body of AuthenticateByName
type AuthRequest struct {
	Username string `json:"Username"`
	Pw       string `json:"Pw"`
}

// AuthResponse represents the response from the AuthenticateByName endpoint
type AuthResponse struct {
	User        User   `json:"User"`
	AccessToken string `json:"AccessToken"`
	ServerID    string `json:"ServerId"`
}

// User represents an Emby user
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// ItemsResponse represents a list of playlist items.
// Items decode straight into domain entries so unknown fields pass through.
type ItemsResponse struct {
	Items            []domain.PlaylistEntry `json:"Items"`
	TotalRecordCount int                    `json:"TotalRecordCount"`
}
