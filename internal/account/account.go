package account

import "time"

// Status reflects the health of a connected seller account.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusTokenExpired Status = "token_expired"
	StatusError        Status = "error"
)

// Counts aggregates per-endpoint item totals from the last sync cycle.
type Counts struct {
	Items     int `json:"items"`
	Orders    int `json:"orders"`
	Claims    int `json:"claims"`
	Questions int `json:"questions"`
}

// Account is one connected seller credential set mirrored by the engine.
type Account struct {
	UUID          string    `json:"uuid"`
	SellerID      string    `json:"seller_id"`
	Nickname      string    `json:"nickname"`
	AccessToken   string    `json:"access_token,omitempty"`
	RefreshToken  string    `json:"refresh_token,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	SyncEnabled   bool      `json:"sync_enabled"`
	Status        Status    `json:"status"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	LastSyncError string    `json:"last_sync_error,omitempty"`
	Counts        Counts    `json:"counts"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Credentials is the slice of an account the request layer needs.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
