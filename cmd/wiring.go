package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/Billhebert/projeto-sass-sub006/internal/account"
	"github.com/Billhebert/projeto-sass-sub006/internal/config"
	"github.com/Billhebert/projeto-sass-sub006/internal/engine"
	"github.com/Billhebert/projeto-sass-sub006/internal/logring"
	"github.com/Billhebert/projeto-sass-sub006/internal/metrics"
	"github.com/Billhebert/projeto-sass-sub006/internal/provider"
	"github.com/Billhebert/projeto-sass-sub006/internal/store"
)

// runtime bundles the fully wired engine and its collaborators.
type runtime struct {
	accounts *account.Manager
	engine   *engine.Orchestrator
	ring     *logring.Ring
	registry *prometheus.Registry
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	accounts := account.NewManager(cfg.DataDir)
	ring := logring.New(cfg.LogRingSize)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	tokens := provider.NewTokenClient(cfg.ClientID, cfg.ClientSecret, cfg.AuthURL, cfg.TokenURL)
	client := provider.NewClient(cfg.APIBaseURL, cfg.SiteID, accounts, tokens, ring, collector)
	pager := provider.NewPager(client, provider.PagerConfig{
		PageSize:             cfg.PageSize,
		MaxOffset:            cfg.MaxOffset,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		MaxEmptyPages:        cfg.MaxEmptyPages,
		PageDelay:            cfg.PageDelay,
		RateLimitDelay:       cfg.RateLimitDelay,
	}, collector)

	var records engine.RecordStore = store.NewMemory()
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		records = db
		log.Info().Msg("postgres record store attached")
	} else {
		log.Warn().Msg("no DATABASE_URL configured, mirrored records stay in memory")
	}

	eng := engine.NewOrchestrator(accounts, pager, records, engine.NewBus(), ring, collector, cfg.SyncInterval)

	return &runtime{
		accounts: accounts,
		engine:   eng,
		ring:     ring,
		registry: registry,
	}, nil
}
