// Package gas serves fee reports through a short TTL cache so bursts of
// requests hit the upstream tracker at most once per window.
package gas

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/defi-copilot/copilotd/internal/cache"
	"github.com/defi-copilot/copilotd/internal/model"
)

const DefaultTTL = 12 * time.Second

const cacheKey = "gas:report"

// Fetcher produces a fresh gas report. Fetch never fails hard; providers
// degrade to mock data and annotate the payload.
type Fetcher interface {
	FetchGasReport(ctx context.Context) model.GasReport
}

type Oracle struct {
	fetcher Fetcher
	store   *cache.Store
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	last      model.GasReport
	fetchedAt time.Time
}

func NewOracle(fetcher Fetcher, store *cache.Store, ttl time.Duration, log *zap.Logger) *Oracle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Oracle{fetcher: fetcher, store: store, ttl: ttl, log: log, now: time.Now}
}

// Report returns the current gas report. Within the TTL every caller gets
// the same payload with Cached set; after it expires the next call fetches
// fresh data. The sqlite store lets a CLI invocation reuse a report the
// server fetched moments earlier.
func (o *Oracle) Report(ctx context.Context) model.GasReport {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.fetchedAt.IsZero() && o.now().Sub(o.fetchedAt) < o.ttl {
		report := o.last
		report.Cached = true
		return report
	}

	if report, age, ok := o.fromStore(); ok && age < o.ttl {
		o.last = report
		// Backdate by the entry's age so the freshness window counts
		// from the upstream fetch, not from this read.
		o.fetchedAt = o.now().Add(-age)
		report.Cached = true
		return report
	}

	report := o.fetcher.FetchGasReport(ctx)
	o.last = report
	o.fetchedAt = o.now()
	o.toStore(report)
	return report
}

func (o *Oracle) fromStore() (model.GasReport, time.Duration, bool) {
	if o.store == nil {
		return model.GasReport{}, 0, false
	}
	res, err := o.store.Get(cacheKey)
	if err != nil || !res.Hit || res.Stale {
		return model.GasReport{}, 0, false
	}
	var report model.GasReport
	if err := json.Unmarshal(res.Value, &report); err != nil {
		o.log.Debug("discarding undecodable cached gas report", zap.Error(err))
		return model.GasReport{}, 0, false
	}
	return report, res.Age, true
}

func (o *Oracle) toStore(report model.GasReport) {
	if o.store == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := o.store.Set(cacheKey, payload, o.ttl); err != nil {
		o.log.Debug("gas report cache write failed", zap.Error(err))
	}
}
