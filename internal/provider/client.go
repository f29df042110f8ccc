package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
	"github.com/Billhebert/projeto-sass-sub006/internal/logring"
	"github.com/Billhebert/projeto-sass-sub006/internal/metrics"
)

// CredentialStore is the slice of the account manager the request layer
// depends on: reading tokens, persisting refreshed ones, and flagging
// accounts whose refresh token no longer works.
type CredentialStore interface {
	Credentials(accountID string) (account.Credentials, error)
	UpdateToken(accountID, accessToken, refreshToken string, expiresAt time.Time) error
	MarkTokenExpired(accountID string) error
}

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Token, error)
}

// Client is the authenticating request layer. Every outbound call
// carries the account's bearer token and the client-site header; an
// authorization failure triggers exactly one refresh-and-replay.
type Client struct {
	baseURL     string
	siteID      string
	credentials CredentialStore
	tokens      refresher
	httpClient  *http.Client
	ring        *logring.Ring
	metrics     metrics.Recorder
}

func NewClient(baseURL, siteID string, creds CredentialStore, tokens *TokenClient, ring *logring.Ring, rec metrics.Recorder) *Client {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Client{
		baseURL:     strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		siteID:      siteID,
		credentials: creds,
		tokens:      tokens,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		ring:        ring,
		metrics:     rec,
	}
}

// Execute issues one request on behalf of an account and returns the
// raw response body. Non-2xx responses come back as *FetchError; an
// unrecoverable authorization failure as ErrCredentialsExpired.
func (c *Client) Execute(ctx context.Context, accountID, method, path string, body any) ([]byte, error) {
	creds, err := c.credentials.Credentials(accountID)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", method, path, err)
	}

	status, respBody, err := c.do(ctx, method, path, creds.AccessToken, body)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", method, path, err)
	}

	if status == http.StatusUnauthorized && strings.TrimSpace(creds.RefreshToken) != "" {
		creds, err = c.refresh(ctx, accountID, creds.RefreshToken)
		if err != nil {
			return nil, err
		}

		status, respBody, err = c.do(ctx, method, path, creds.AccessToken, body)
		if err != nil {
			return nil, fmt.Errorf("execute %s %s: %w", method, path, err)
		}
	}

	if status == http.StatusUnauthorized {
		c.append(logring.LevelError, accountID, fmt.Sprintf("authorization failed for %s after token refresh", path))
		log.Error().
			Str("account_uuid", accountID).
			Str("path", path).
			Msg("authorization failed after token refresh")
		if err := c.credentials.MarkTokenExpired(accountID); err != nil {
			log.Warn().Err(err).Str("account_uuid", accountID).Msg("mark token expired failed")
		}
		return nil, ErrCredentialsExpired
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return respBody, &FetchError{StatusCode: status, Message: providerMessage(respBody)}
	}

	return respBody, nil
}

func (c *Client) refresh(ctx context.Context, accountID, refreshToken string) (account.Credentials, error) {
	token, err := c.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		c.append(logring.LevelError, accountID, "token refresh failed: "+err.Error())
		log.Error().Err(err).Str("account_uuid", accountID).Msg("token refresh failed")
		if markErr := c.credentials.MarkTokenExpired(accountID); markErr != nil {
			log.Warn().Err(markErr).Str("account_uuid", accountID).Msg("mark token expired failed")
		}
		return account.Credentials{}, ErrCredentialsExpired
	}

	if err := c.credentials.UpdateToken(accountID, token.AccessToken, token.RefreshToken, token.ExpiresAt); err != nil {
		return account.Credentials{}, fmt.Errorf("persist refreshed token: %w", err)
	}

	c.metrics.RecordTokenRefresh()
	c.append(logring.LevelInfo, accountID, "access token refreshed")
	log.Info().Str("account_uuid", accountID).Msg("access token refreshed")

	return account.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Client-Site", c.siteID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

func (c *Client) append(level logring.Level, accountID, message string) {
	if c.ring != nil {
		c.ring.Append(level, accountID, message)
	}
}

func providerMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
