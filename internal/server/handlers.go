package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
	"github.com/Billhebert/projeto-sass-sub006/internal/engine"
	"github.com/Billhebert/projeto-sass-sub006/internal/provider"
)

// accountView is the account representation exposed over HTTP; tokens
// never leave the process.
type accountView struct {
	UUID          string         `json:"uuid"`
	SellerID      string         `json:"seller_id"`
	Nickname      string         `json:"nickname"`
	SyncEnabled   bool           `json:"sync_enabled"`
	Status        account.Status `json:"status"`
	LastSyncAt    time.Time      `json:"last_sync_at,omitempty"`
	LastSyncError string         `json:"last_sync_error,omitempty"`
	Counts        account.Counts `json:"counts"`
}

func toView(acct *account.Account) accountView {
	return accountView{
		UUID:          acct.UUID,
		SellerID:      acct.SellerID,
		Nickname:      acct.Nickname,
		SyncEnabled:   acct.SyncEnabled,
		Status:        acct.Status,
		LastSyncAt:    acct.LastSyncAt,
		LastSyncError: acct.LastSyncError,
		Counts:        acct.Counts,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		views = append(views, toView(acct))
	}
	writeJSON(w, http.StatusOK, views)
}

type createAccountRequest struct {
	SellerID     string `json:"seller_id"`
	Nickname     string `json:"nickname"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var token *provider.Token
	if req.AccessToken != "" {
		token = &provider.Token{
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			ExpiresIn:    req.ExpiresIn,
		}
		if req.ExpiresIn > 0 {
			token.ExpiresAt = time.Now().UTC().Add(time.Duration(req.ExpiresIn) * time.Second)
		}
	}

	acct, err := s.engine.AddAccount(req.SellerID, req.Nickname, token)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toView(acct))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.RemoveAccount(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.accounts.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	// Fire and forget; overlap with an in-flight cycle is a no-op.
	go func() {
		_ = s.engine.Sync(context.Background(), id)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync triggered"})
}

func (s *Server) handleStartAutoSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.StartAutoSync(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "auto sync armed"})
}

func (s *Server) handleStopAutoSync(w http.ResponseWriter, r *http.Request) {
	s.engine.StopAutoSync(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "auto sync disarmed"})
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	if s.ring == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.ring.Entries())
}

// handleEvents streams engine lifecycle events as SSE until the client
// disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := make(chan engine.Event, 32)
	unsubscribes := make([]func(), 0, 6)
	for _, kind := range []engine.EventKind{
		engine.EventAccountAdded,
		engine.EventAccountRemoved,
		engine.EventAccountUpdated,
		engine.EventSyncStarted,
		engine.EventSyncCompleted,
		engine.EventSyncError,
	} {
		unsubscribes = append(unsubscribes, s.engine.Bus().On(kind, func(evt engine.Event) {
			select {
			case events <- evt:
			default: // drop when the client cannot keep up
			}
		}))
	}
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			payload, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := sse.WriteEvent(string(payload)); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
