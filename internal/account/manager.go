package account

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Manager serializes all account reads and writes over the file storage.
// It is the credential store and account-status collaborator for the
// provider client and the sync engine.
type Manager struct {
	storage *Storage
	mu      sync.RWMutex
}

func NewManager(dataDir string) *Manager {
	return &Manager{
		storage: NewStorage(dataDir),
	}
}

func (m *Manager) Create(sellerID, nickname string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, fmt.Errorf("create account: seller id is required")
	}

	now := time.Now().UTC()
	account := &Account{
		UUID:        GenerateUUID(),
		SellerID:    sellerID,
		Nickname:    strings.TrimSpace(nickname),
		SyncEnabled: true,
		Status:      StatusConnected,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.storage.Save(account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	return account, nil
}

func (m *Manager) Get(uuid string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, err := m.storage.Load(uuid)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

func (m *Manager) Delete(uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.Delete(uuid); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (m *Manager) List() ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts, err := m.storage.List()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// ListSyncEnabled returns every account eligible for scheduled sync.
func (m *Manager) ListSyncEnabled() ([]*Account, error) {
	accounts, err := m.List()
	if err != nil {
		return nil, err
	}

	enabled := make([]*Account, 0, len(accounts))
	for _, acct := range accounts {
		if acct.SyncEnabled {
			enabled = append(enabled, acct)
		}
	}
	return enabled, nil
}

// Credentials returns the token slice of an account for the request layer.
func (m *Manager) Credentials(uuid string) (Credentials, error) {
	acct, err := m.Get(uuid)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		AccessToken:  acct.AccessToken,
		RefreshToken: acct.RefreshToken,
		ExpiresAt:    acct.ExpiresAt,
	}, nil
}

func (m *Manager) UpdateToken(uuid, accessToken, refreshToken string, expiresAt time.Time) error {
	return m.mutate("update token", uuid, func(acct *Account) {
		acct.AccessToken = strings.TrimSpace(accessToken)
		if rt := strings.TrimSpace(refreshToken); rt != "" {
			acct.RefreshToken = rt
		}
		acct.ExpiresAt = expiresAt.UTC()
		acct.Status = StatusConnected
	})
}

// MarkTokenExpired flags an account that exhausted its refresh attempts.
func (m *Manager) MarkTokenExpired(uuid string) error {
	return m.mutate("mark token expired", uuid, func(acct *Account) {
		acct.Status = StatusTokenExpired
	})
}

func (m *Manager) RecordSyncSuccess(uuid string, counts Counts) error {
	return m.mutate("record sync success", uuid, func(acct *Account) {
		acct.LastSyncAt = time.Now().UTC()
		acct.LastSyncError = ""
		acct.Counts = counts
		acct.Status = StatusConnected
	})
}

func (m *Manager) RecordSyncError(uuid, message string) error {
	return m.mutate("record sync error", uuid, func(acct *Account) {
		acct.LastSyncAt = time.Now().UTC()
		acct.LastSyncError = message
		acct.Status = StatusError
	})
}

func (m *Manager) SetSyncEnabled(uuid string, enabled bool) error {
	return m.mutate("set sync enabled", uuid, func(acct *Account) {
		acct.SyncEnabled = enabled
	})
}

func (m *Manager) mutate(op, uuid string, apply func(*Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, err := m.storage.Load(uuid)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	apply(acct)
	acct.UpdatedAt = time.Now().UTC()

	if err := m.storage.Save(acct); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
