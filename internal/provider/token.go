package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Token is the provider's token endpoint response with the expiry
// already resolved to an absolute timestamp.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// TokenClient talks to the provider's OAuth token endpoint.
type TokenClient struct {
	config     *oauth2.Config
	httpClient *http.Client
	tokenURL   string
}

func NewTokenClient(clientID, clientSecret, authURL, tokenURL string) *TokenClient {
	return &TokenClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   tokenURL,
	}
}

// AuthCodeURL builds the provider authorization URL for connecting a
// new seller account.
func (c *TokenClient) AuthCodeURL(redirectURI, state string) string {
	cfg := *c.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for the initial token pair.
func (c *TokenClient) Exchange(ctx context.Context, code, redirectURI string) (*Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("exchange token: empty code")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)

	return c.requestToken(ctx, form)
}

// Refresh performs one refresh-token round trip.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token: empty refresh token")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.config.ClientID)
	form.Set("client_secret", c.config.ClientSecret)
	form.Set("refresh_token", refreshToken)

	return c.requestToken(ctx, form)
}

func (c *TokenClient) requestToken(ctx context.Context, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("request token: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request token: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("request token: read response: %w", err)
	}

	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("request token: parse json: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(payload.Error), "invalid_grant") {
		return nil, fmt.Errorf("request token: refresh token invalid or expired")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("request token: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.TrimSpace(payload.AccessToken) == "" {
		return nil, fmt.Errorf("request token: missing access_token")
	}

	token := &Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
		ExpiresIn:    payload.ExpiresIn,
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}

	return token, nil
}
