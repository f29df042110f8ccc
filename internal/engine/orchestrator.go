package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
	"github.com/Billhebert/projeto-sass-sub006/internal/logring"
	"github.com/Billhebert/projeto-sass-sub006/internal/metrics"
	"github.com/Billhebert/projeto-sass-sub006/internal/provider"
)

const defaultSyncInterval = 5 * time.Minute

// Fetcher drains one endpoint for one account. Satisfied by
// *provider.Pager.
type Fetcher interface {
	DrainAll(ctx context.Context, accountID string, endpoint provider.Endpoint, opts provider.DrainOptions) (provider.DrainResult, error)
}

// RecordStore is the storage collaborator. The engine never issues
// SQL directly; it depends only on this contract.
type RecordStore interface {
	UpsertRecords(ctx context.Context, accountID, endpoint string, items []json.RawMessage) error
	RecordSyncRun(ctx context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr string) error
}

// Endpoints returns the drainable resources for one seller.
func Endpoints(sellerID string) []provider.Endpoint {
	return []provider.Endpoint{
		{Name: "items", Path: "/users/" + sellerID + "/items/search"},
		{Name: "orders", Path: "/orders/search?seller=" + sellerID},
		{Name: "claims", Path: "/post-purchase/v1/claims/search?seller_id=" + sellerID},
		{Name: "questions", Path: "/questions/search?seller_id=" + sellerID},
	}
}

// Orchestrator schedules and runs sync cycles, one logical worker per
// account. A per-account in-flight flag guarantees at most one active
// cycle per account; overlapping requests are dropped, not queued.
type Orchestrator struct {
	accounts *account.Manager
	fetcher  Fetcher
	store    RecordStore
	bus      *Bus
	ring     *logring.Ring
	metrics  metrics.Recorder
	interval time.Duration

	mu        sync.Mutex
	inFlight  map[string]bool
	schedules map[string]chan struct{}
	wg        sync.WaitGroup
}

func NewOrchestrator(accounts *account.Manager, fetcher Fetcher, store RecordStore, bus *Bus, ring *logring.Ring, rec metrics.Recorder, interval time.Duration) *Orchestrator {
	if bus == nil {
		bus = NewBus()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Orchestrator{
		accounts:  accounts,
		fetcher:   fetcher,
		store:     store,
		bus:       bus,
		ring:      ring,
		metrics:   rec,
		interval:  interval,
		inFlight:  make(map[string]bool),
		schedules: make(map[string]chan struct{}),
	}
}

// Bus exposes the event bus for subscribers (UI badges, audit log).
func (o *Orchestrator) Bus() *Bus {
	return o.bus
}

// AddAccount registers a freshly connected seller and arms its
// recurring sync.
func (o *Orchestrator) AddAccount(sellerID, nickname string, token *provider.Token) (*account.Account, error) {
	acct, err := o.accounts.Create(sellerID, nickname)
	if err != nil {
		return nil, err
	}

	if token != nil {
		if err := o.accounts.UpdateToken(acct.UUID, token.AccessToken, token.RefreshToken, token.ExpiresAt); err != nil {
			return nil, err
		}
	}

	o.bus.Publish(Event{Kind: EventAccountAdded, AccountID: acct.UUID})
	o.append(logring.LevelInfo, acct.UUID, "account connected")

	if err := o.StartAutoSync(acct.UUID); err != nil {
		log.Warn().Err(err).Str("account_uuid", acct.UUID).Msg("start auto sync after connect failed")
	}

	return o.accounts.Get(acct.UUID)
}

// RemoveAccount stops the recurring schedule before deleting account
// state so no orphaned timer keeps referencing a removed account.
func (o *Orchestrator) RemoveAccount(accountID string) error {
	o.StopAutoSync(accountID)

	if err := o.accounts.Delete(accountID); err != nil {
		return err
	}

	o.bus.Publish(Event{Kind: EventAccountRemoved, AccountID: accountID})
	o.append(logring.LevelInfo, accountID, "account disconnected")
	return nil
}

// StartAutoSync runs one immediate sync and then re-arms a recurring
// schedule for the account. Re-arming clears any existing schedule
// first, so the call is idempotent.
func (o *Orchestrator) StartAutoSync(accountID string) error {
	acct, err := o.accounts.Get(accountID)
	if err != nil {
		return fmt.Errorf("start auto sync: %w", err)
	}
	if !acct.SyncEnabled {
		log.Debug().Str("account_uuid", accountID).Msg("auto sync not armed: sync disabled")
		return nil
	}

	o.mu.Lock()
	if stop, ok := o.schedules[accountID]; ok {
		close(stop)
	}
	stop := make(chan struct{})
	o.schedules[accountID] = stop
	o.mu.Unlock()

	o.wg.Add(1)
	go o.scheduleLoop(accountID, stop)

	log.Info().
		Str("account_uuid", accountID).
		Dur("interval", o.interval).
		Msg("auto sync armed")
	return nil
}

// StopAutoSync cancels the recurring schedule. Only future ticks are
// prevented; an in-flight cycle finishes naturally. Safe to call on an
// account with no active schedule.
func (o *Orchestrator) StopAutoSync(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if stop, ok := o.schedules[accountID]; ok {
		close(stop)
		delete(o.schedules, accountID)
		log.Info().Str("account_uuid", accountID).Msg("auto sync disarmed")
	}
}

// StartAll arms auto sync for every sync-enabled account.
func (o *Orchestrator) StartAll() error {
	accounts, err := o.accounts.ListSyncEnabled()
	if err != nil {
		return fmt.Errorf("start all: %w", err)
	}

	for _, acct := range accounts {
		if err := o.StartAutoSync(acct.UUID); err != nil {
			log.Warn().Err(err).Str("account_uuid", acct.UUID).Msg("start auto sync failed")
		}
	}
	return nil
}

// StopAll disarms every schedule and waits for the loops to exit.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	for id, stop := range o.schedules {
		close(stop)
		delete(o.schedules, id)
	}
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) scheduleLoop(accountID string, stop chan struct{}) {
	defer o.wg.Done()

	if err := o.Sync(context.Background(), accountID); err != nil {
		log.Error().Err(err).Str("account_uuid", accountID).Msg("scheduled sync failed")
	}

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.Sync(context.Background(), accountID); err != nil {
				log.Error().Err(err).Str("account_uuid", accountID).Msg("scheduled sync failed")
			}
		case <-stop:
			return
		}
	}
}

// Sync runs one cycle for one account. A cycle already in flight for
// the same account turns the call into a logged no-op.
func (o *Orchestrator) Sync(ctx context.Context, accountID string) error {
	if !o.tryAcquire(accountID) {
		log.Debug().Str("account_uuid", accountID).Msg("sync already in flight, skipped")
		o.append(logring.LevelInfo, accountID, "sync skipped: already in flight")
		return nil
	}
	defer o.release(accountID)

	return o.run(ctx, accountID)
}

// SyncAll runs one cycle for every sync-enabled account sequentially.
// One account's failure never aborts the remaining accounts.
func (o *Orchestrator) SyncAll(ctx context.Context) (map[string]error, error) {
	accounts, err := o.accounts.ListSyncEnabled()
	if err != nil {
		return nil, fmt.Errorf("sync all: %w", err)
	}

	results := make(map[string]error, len(accounts))
	for _, acct := range accounts {
		results[acct.UUID] = o.Sync(ctx, acct.UUID)
	}
	return results, nil
}

func (o *Orchestrator) run(ctx context.Context, accountID string) error {
	acct, err := o.accounts.Get(accountID)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	startedAt := time.Now().UTC()
	o.bus.Publish(Event{Kind: EventSyncStarted, AccountID: accountID})
	o.append(logring.LevelInfo, accountID, "sync started")
	log.Info().Str("account_uuid", accountID).Str("seller_id", acct.SellerID).Msg("sync started")

	counts := make(map[string]int)
	for _, endpoint := range Endpoints(acct.SellerID) {
		res, drainErr := o.fetcher.DrainAll(ctx, accountID, endpoint, provider.DrainOptions{})

		if len(res.Items) > 0 {
			if storeErr := o.store.UpsertRecords(ctx, accountID, endpoint.Name, res.Items); storeErr != nil {
				return o.fail(ctx, accountID, startedAt, counts, fmt.Errorf("store %s records: %w", endpoint.Name, storeErr))
			}
		}
		counts[endpoint.Name] = res.Collected

		if drainErr == nil {
			continue
		}

		switch {
		case errors.Is(drainErr, provider.ErrCredentialsExpired):
			// Terminal for this cycle; the request layer already moved
			// the account to token_expired. Next tick retries from
			// scratch with a fresh refresh attempt.
			return o.failExpired(ctx, accountID, startedAt, counts, drainErr)

		case provider.IsClientError(drainErr):
			// Endpoint unavailable for this account (typically a
			// missing permission scope). Partial results stand and the
			// remaining endpoints still run.
			o.append(logring.LevelWarn, accountID, fmt.Sprintf("endpoint %s unavailable: %v", endpoint.Name, drainErr))
			log.Warn().
				Err(drainErr).
				Str("account_uuid", accountID).
				Str("endpoint", endpoint.Name).
				Msg("endpoint unavailable, continuing")

		default:
			return o.fail(ctx, accountID, startedAt, counts, fmt.Errorf("drain %s: %w", endpoint.Name, drainErr))
		}
	}

	if err := o.accounts.RecordSyncSuccess(accountID, toAccountCounts(counts)); err != nil {
		return o.fail(ctx, accountID, startedAt, counts, fmt.Errorf("persist sync result: %w", err))
	}
	if err := o.store.RecordSyncRun(ctx, accountID, startedAt, counts, ""); err != nil {
		log.Warn().Err(err).Str("account_uuid", accountID).Msg("record sync run failed")
	}

	o.metrics.RecordSyncOutcome(true)
	o.bus.Publish(Event{Kind: EventSyncCompleted, AccountID: accountID, Counts: counts})
	o.bus.Publish(Event{Kind: EventAccountUpdated, AccountID: accountID})
	o.append(logring.LevelInfo, accountID, "sync completed")
	log.Info().
		Str("account_uuid", accountID).
		Dur("duration", time.Since(startedAt)).
		Int("items", counts["items"]).
		Int("orders", counts["orders"]).
		Int("claims", counts["claims"]).
		Int("questions", counts["questions"]).
		Msg("sync completed")

	return nil
}

func (o *Orchestrator) fail(ctx context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr error) error {
	if err := o.accounts.RecordSyncError(accountID, syncErr.Error()); err != nil {
		log.Warn().Err(err).Str("account_uuid", accountID).Msg("record sync error failed")
	}
	return o.emitFailure(ctx, accountID, startedAt, counts, syncErr)
}

// failExpired keeps the token_expired status set by the request layer
// instead of downgrading it to a generic error.
func (o *Orchestrator) failExpired(ctx context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr error) error {
	return o.emitFailure(ctx, accountID, startedAt, counts, syncErr)
}

func (o *Orchestrator) emitFailure(ctx context.Context, accountID string, startedAt time.Time, counts map[string]int, syncErr error) error {
	if err := o.store.RecordSyncRun(ctx, accountID, startedAt, counts, syncErr.Error()); err != nil {
		log.Warn().Err(err).Str("account_uuid", accountID).Msg("record sync run failed")
	}

	o.metrics.RecordSyncOutcome(false)
	o.bus.Publish(Event{Kind: EventSyncError, AccountID: accountID, Message: syncErr.Error()})
	o.bus.Publish(Event{Kind: EventAccountUpdated, AccountID: accountID})
	o.append(logring.LevelError, accountID, "sync failed: "+syncErr.Error())
	log.Error().Err(syncErr).Str("account_uuid", accountID).Msg("sync failed")

	return syncErr
}

func (o *Orchestrator) tryAcquire(accountID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.inFlight[accountID] {
		return false
	}
	o.inFlight[accountID] = true
	return true
}

func (o *Orchestrator) release(accountID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, accountID)
}

func (o *Orchestrator) append(level logring.Level, accountID, message string) {
	if o.ring != nil {
		o.ring.Append(level, accountID, message)
	}
}

func toAccountCounts(counts map[string]int) account.Counts {
	return account.Counts{
		Items:     counts["items"],
		Orders:    counts["orders"],
		Claims:    counts["claims"],
		Questions: counts["questions"],
	}
}
