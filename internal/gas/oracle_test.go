package gas

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/defi-copilot/copilotd/internal/cache"
	"github.com/defi-copilot/copilotd/internal/model"
)

type countingFetcher struct {
	calls int
}

func (f *countingFetcher) FetchGasReport(context.Context) model.GasReport {
	f.calls++
	return model.GasReport{
		Slow:     "20",
		Standard: strconv.Itoa(20 + f.calls),
		Fast:     "30",
		BaseFee:  "18",
	}
}

func TestReportServesCachedPayloadWithinTTL(t *testing.T) {
	fetcher := &countingFetcher{}
	o := NewOracle(fetcher, nil, 12*time.Second, nil)
	now := time.Unix(1000, 0)
	o.now = func() time.Time { return now }

	first := o.Report(context.Background())
	if first.Cached {
		t.Fatal("first report must be fresh")
	}

	now = now.Add(5 * time.Second)
	second := o.Report(context.Background())
	if !second.Cached {
		t.Fatal("report within TTL must be marked cached")
	}
	if second.Standard != first.Standard {
		t.Fatalf("cached payload differs: %s vs %s", second.Standard, first.Standard)
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetches = %d, want 1 inside the TTL window", fetcher.calls)
	}
}

func TestReportRefetchesAfterTTL(t *testing.T) {
	fetcher := &countingFetcher{}
	o := NewOracle(fetcher, nil, 12*time.Second, nil)
	now := time.Unix(1000, 0)
	o.now = func() time.Time { return now }

	o.Report(context.Background())
	now = now.Add(13 * time.Second)
	fresh := o.Report(context.Background())

	if fresh.Cached {
		t.Fatal("post-TTL report must be fresh")
	}
	if fetcher.calls != 2 {
		t.Fatalf("fetches = %d, want 2 after TTL expiry", fetcher.calls)
	}
}

// seedAgedReport writes a gas report to a fresh store and backdates the
// row so it reads as ageSeconds old.
func seedAgedReport(t *testing.T, report model.GasReport, ageSeconds int) *cache.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	store, err := cache.Open(path, filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	payload, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal report: %v", err)
	}
	if err := store.Set(cacheKey, payload, time.Hour); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec("UPDATE upstream_cache SET created_at = created_at - ? WHERE key = ?", ageSeconds, cacheKey); err != nil {
		t.Fatalf("backdate entry: %v", err)
	}
	return store
}

func TestStoreEntryAgeCountsAgainstTTL(t *testing.T) {
	store := seedAgedReport(t, model.GasReport{Standard: "77"}, 10)

	fetcher := &countingFetcher{}
	o := NewOracle(fetcher, store, 12*time.Second, nil)
	now := time.Now()
	o.now = func() time.Time { return now }

	first := o.Report(context.Background())
	if !first.Cached || first.Standard != "77" {
		t.Fatalf("first report = %+v, want the seeded payload", first)
	}

	// The entry was already ~10s old when read, so only ~2s of the 12s
	// window remain. 4s later it must be refetched, not served again.
	now = now.Add(4 * time.Second)
	second := o.Report(context.Background())
	if second.Cached {
		t.Fatal("aged store entry must not restart the freshness window")
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetches = %d, want 1", fetcher.calls)
	}
}

func TestStoreEntryOlderThanTTLIsSkipped(t *testing.T) {
	store := seedAgedReport(t, model.GasReport{Standard: "77"}, 30)

	fetcher := &countingFetcher{}
	o := NewOracle(fetcher, store, 12*time.Second, nil)

	report := o.Report(context.Background())
	if report.Cached || report.Standard == "77" {
		t.Fatalf("report = %+v, want a fresh fetch past the TTL", report)
	}
	if fetcher.calls != 1 {
		t.Fatalf("fetches = %d, want 1", fetcher.calls)
	}
}

func TestZeroTTLFallsBackToDefault(t *testing.T) {
	o := NewOracle(&countingFetcher{}, nil, 0, nil)
	if o.ttl != DefaultTTL {
		t.Fatalf("ttl = %s, want default %s", o.ttl, DefaultTTL)
	}
}
