package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newJSONResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type fakeCredStore struct {
	mu           sync.Mutex
	creds        account.Credentials
	tokenUpdates int
	expiredCalls int
}

func (s *fakeCredStore) Credentials(string) (account.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *fakeCredStore) UpdateToken(_, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.AccessToken = accessToken
	if refreshToken != "" {
		s.creds.RefreshToken = refreshToken
	}
	s.creds.ExpiresAt = expiresAt
	s.tokenUpdates++
	return nil
}

func (s *fakeCredStore) MarkTokenExpired(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredCalls++
	return nil
}

type fakeRefresher struct {
	token *Token
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(context.Context, string) (*Token, error) {
	f.calls++
	return f.token, f.err
}

func newTestClient(creds *fakeCredStore, transport roundTripFunc) *Client {
	client := NewClient("https://api.example.com", "MLB", creds, nil, nil, nil)
	client.httpClient = &http.Client{Transport: transport}
	return client
}

func TestExecuteInjectsHeaders(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{AccessToken: "token-1"}}
	client := newTestClient(creds, func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("Authorization = %q, want %q", got, "Bearer token-1")
		}
		if got := req.Header.Get("X-Client-Site"); got != "MLB" {
			t.Fatalf("X-Client-Site = %q, want %q", got, "MLB")
		}
		if req.URL.String() != "https://api.example.com/orders/search" {
			t.Fatalf("url = %q", req.URL.String())
		}
		return newJSONResponse(http.StatusOK, `{"results":[]}`), nil
	})

	body, err := client.Execute(context.Background(), "acct", http.MethodGet, "/orders/search", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(body) != `{"results":[]}` {
		t.Fatalf("body = %q", string(body))
	}
}

func TestExecuteRefreshAndReplay(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	}}

	var requests int
	client := newTestClient(creds, func(req *http.Request) (*http.Response, error) {
		requests++
		if req.Header.Get("Authorization") == "Bearer stale" {
			return newJSONResponse(http.StatusUnauthorized, `{"message":"invalid token"}`), nil
		}
		if req.Header.Get("Authorization") != "Bearer fresh" {
			t.Fatalf("unexpected Authorization %q", req.Header.Get("Authorization"))
		}
		return newJSONResponse(http.StatusOK, `[{"id":1}]`), nil
	})

	refresher := &fakeRefresher{token: &Token{
		AccessToken:  "fresh",
		RefreshToken: "refresh-2",
		ExpiresAt:    time.Now().UTC().Add(6 * time.Hour),
	}}
	client.tokens = refresher

	body, err := client.Execute(context.Background(), "acct", http.MethodGet, "/items", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(body) != `[{"id":1}]` {
		t.Fatalf("body = %q", string(body))
	}
	if requests != 2 {
		t.Fatalf("requests = %d, want 2 (original + replay)", requests)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", refresher.calls)
	}
	if creds.tokenUpdates != 1 {
		t.Fatalf("token updates = %d, want exactly 1", creds.tokenUpdates)
	}
	if creds.creds.RefreshToken != "refresh-2" {
		t.Fatalf("refresh token = %q, want refresh-2", creds.creds.RefreshToken)
	}
}

func TestExecuteReplayStillUnauthorized(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	}}

	client := newTestClient(creds, func(*http.Request) (*http.Response, error) {
		return newJSONResponse(http.StatusUnauthorized, `{"message":"invalid token"}`), nil
	})
	client.tokens = &fakeRefresher{token: &Token{AccessToken: "fresh"}}

	_, err := client.Execute(context.Background(), "acct", http.MethodGet, "/items", nil)
	if !errors.Is(err, ErrCredentialsExpired) {
		t.Fatalf("Execute() error = %v, want ErrCredentialsExpired", err)
	}
	if creds.expiredCalls != 1 {
		t.Fatalf("expired calls = %d, want 1", creds.expiredCalls)
	}
}

func TestExecuteRefreshFailureMarksExpired(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
	}}

	client := newTestClient(creds, func(*http.Request) (*http.Response, error) {
		return newJSONResponse(http.StatusUnauthorized, `{}`), nil
	})
	client.tokens = &fakeRefresher{err: fmt.Errorf("refresh token invalid or expired")}

	_, err := client.Execute(context.Background(), "acct", http.MethodGet, "/items", nil)
	if !errors.Is(err, ErrCredentialsExpired) {
		t.Fatalf("Execute() error = %v, want ErrCredentialsExpired", err)
	}
	if creds.expiredCalls != 1 {
		t.Fatalf("expired calls = %d, want 1", creds.expiredCalls)
	}
	if creds.tokenUpdates != 0 {
		t.Fatalf("token updates = %d, want 0", creds.tokenUpdates)
	}
}

func TestExecuteNoRefreshTokenFailsDirectly(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{AccessToken: "stale"}}

	client := newTestClient(creds, func(*http.Request) (*http.Response, error) {
		return newJSONResponse(http.StatusUnauthorized, `{}`), nil
	})

	_, err := client.Execute(context.Background(), "acct", http.MethodGet, "/items", nil)
	if !errors.Is(err, ErrCredentialsExpired) {
		t.Fatalf("Execute() error = %v, want ErrCredentialsExpired", err)
	}
}

func TestExecuteNormalizesFetchError(t *testing.T) {
	creds := &fakeCredStore{creds: account.Credentials{AccessToken: "token"}}
	client := newTestClient(creds, func(*http.Request) (*http.Response, error) {
		return newJSONResponse(http.StatusForbidden, `{"message":"caller has no access to claims"}`), nil
	})

	_, err := client.Execute(context.Background(), "acct", http.MethodGet, "/claims", nil)

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Execute() error = %v, want *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden {
		t.Fatalf("StatusCode = %d, want 403", fetchErr.StatusCode)
	}
	if fetchErr.Message != "caller has no access to claims" {
		t.Fatalf("Message = %q", fetchErr.Message)
	}
	if !IsClientError(err) {
		t.Fatal("IsClientError() = false, want true")
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsRateLimit(&FetchError{StatusCode: 429}) {
		t.Fatal("IsRateLimit(429) = false")
	}
	if !IsServerError(&FetchError{StatusCode: 503}) {
		t.Fatal("IsServerError(503) = false")
	}
	if IsClientError(&FetchError{StatusCode: 429}) {
		t.Fatal("IsClientError(429) = true, want false")
	}
	if IsClientError(&FetchError{StatusCode: 401}) {
		t.Fatal("IsClientError(401) = true, want false")
	}
	if !IsClientError(&FetchError{StatusCode: 404}) {
		t.Fatal("IsClientError(404) = false")
	}
	if IsRateLimit(errors.New("plain")) || IsServerError(nil) || IsClientError(nil) {
		t.Fatal("classification matched a non-FetchError")
	}
}
