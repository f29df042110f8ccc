package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Billhebert/projeto-sass-sub006/internal/metrics"
)

const (
	defaultPageSize             = 100
	defaultMaxOffset            = 100000
	defaultMaxConsecutiveErrors = 5
	defaultMaxEmptyPages        = 3
	defaultPageDelay            = 200 * time.Millisecond
	defaultRateLimitDelay       = 2 * time.Second
)

// Endpoint is one drainable provider resource.
type Endpoint struct {
	Name string
	Path string
}

// Executor issues one authenticated request. Satisfied by *Client.
type Executor interface {
	Execute(ctx context.Context, accountID, method, path string, body any) ([]byte, error)
}

// DrainOptions override the starting offset and page size of one drain.
type DrainOptions struct {
	Offset int
	Limit  int
}

// DrainResult carries everything collected before a stop condition hit,
// even when the drain also returns an error.
type DrainResult struct {
	Items     []json.RawMessage
	Collected int
}

// PagerConfig bounds a drain. Zero values fall back to the defaults
// above.
type PagerConfig struct {
	PageSize             int
	MaxOffset            int
	MaxConsecutiveErrors int
	MaxEmptyPages        int
	PageDelay            time.Duration
	RateLimitDelay       time.Duration
}

func (c PagerConfig) withDefaults() PagerConfig {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxOffset <= 0 {
		c.MaxOffset = defaultMaxOffset
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = defaultMaxConsecutiveErrors
	}
	if c.MaxEmptyPages <= 0 {
		c.MaxEmptyPages = defaultMaxEmptyPages
	}
	if c.PageDelay <= 0 {
		c.PageDelay = defaultPageDelay
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = defaultRateLimitDelay
	}
	return c
}

// Pager drains arbitrarily large result sets from endpoints whose
// pagination metadata cannot be trusted. Three independent stopping
// heuristics (short page, declared total, consecutive empty pages) are
// combined with hard ceilings so a drain always terminates, biased
// toward returning partial data over looping.
type Pager struct {
	exec    Executor
	cfg     PagerConfig
	limiter *rate.Limiter
	metrics metrics.Recorder
}

func NewPager(exec Executor, cfg PagerConfig, rec metrics.Recorder) *Pager {
	cfg = cfg.withDefaults()
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Pager{
		exec:    exec,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.PageDelay), 1),
		metrics: rec,
	}
}

// DrainAll pages through one endpoint until a stop condition is met.
// The declared total is fixed the first time the provider reports one
// and never revised. On error the items collected so far are still
// returned.
func (p *Pager) DrainAll(ctx context.Context, accountID string, endpoint Endpoint, opts DrainOptions) (DrainResult, error) {
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	pageSize := opts.Limit
	if pageSize <= 0 {
		pageSize = p.cfg.PageSize
	}

	declaredTotal := -1
	consecutiveEmpty := 0
	consecutiveErrors := 0
	var lastErr error
	var items []json.RawMessage

	start := time.Now()
	defer func() {
		p.metrics.RecordDrainDuration(endpoint.Name, time.Since(start))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return result(items), err
		}

		if offset >= p.cfg.MaxOffset {
			log.Warn().
				Str("account_uuid", accountID).
				Str("endpoint", endpoint.Name).
				Int("offset", offset).
				Msg("drain stopped at offset ceiling")
			break
		}

		if consecutiveErrors >= p.cfg.MaxConsecutiveErrors {
			return result(items), fmt.Errorf("drain %s: %d consecutive errors: %w", endpoint.Name, consecutiveErrors, lastErr)
		}

		body, err := p.exec.Execute(ctx, accountID, http.MethodGet, pageURL(endpoint.Path, offset, pageSize), nil)
		if err != nil {
			switch {
			case errors.Is(err, ErrCredentialsExpired):
				return result(items), err

			case IsRateLimit(err):
				consecutiveErrors++
				lastErr = err
				p.metrics.RecordRateLimited(endpoint.Name)
				if !sleep(ctx, p.cfg.RateLimitDelay) {
					return result(items), ctx.Err()
				}
				continue // retry the same offset

			case IsServerError(err):
				// Skip past the poisoned page instead of stalling on
				// it. Known data-completeness risk: a transient 5xx
				// burst silently drops those pages.
				consecutiveErrors++
				lastErr = err
				log.Warn().
					Err(err).
					Str("account_uuid", accountID).
					Str("endpoint", endpoint.Name).
					Int("offset", offset).
					Msg("server error, skipping page")
				offset += pageSize
				continue

			case IsClientError(err):
				return result(items), err

			default:
				// Transport-level failure. Retry the same offset after
				// the rate-limit delay.
				consecutiveErrors++
				lastErr = err
				if !sleep(ctx, p.cfg.RateLimitDelay) {
					return result(items), ctx.Err()
				}
				continue
			}
		}

		page, err := ParsePage(body)
		if err != nil {
			consecutiveErrors++
			lastErr = err
			offset += pageSize
			continue
		}

		consecutiveErrors = 0
		p.metrics.RecordPageFetched(endpoint.Name, len(page.Items))

		if declaredTotal < 0 && page.HasTotal {
			declaredTotal = page.Total
		}

		if len(page.Items) == 0 {
			consecutiveEmpty++
			if consecutiveEmpty >= p.cfg.MaxEmptyPages {
				break
			}
		} else {
			items = append(items, page.Items...)
			consecutiveEmpty = 0

			if len(page.Items) < pageSize {
				break // short page means last page
			}
			if declaredTotal >= 0 && offset+len(page.Items) >= declaredTotal {
				break
			}
		}

		offset += pageSize

		if err := p.limiter.Wait(ctx); err != nil {
			return result(items), err
		}
	}

	return result(items), nil
}

func result(items []json.RawMessage) DrainResult {
	return DrainResult{Items: items, Collected: len(items)}
}

func pageURL(path string, offset, limit int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%soffset=%d&limit=%d", path, sep, offset, limit)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
