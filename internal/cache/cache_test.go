package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	if err := store.Set("gas:report", []byte(`{"standard":"25"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	res, err := store.Get("gas:report")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Hit {
		t.Fatal("expected a hit")
	}
	if res.Stale {
		t.Fatal("fresh entry must not be stale")
	}
	if string(res.Value) != `{"standard":"25"}` {
		t.Fatalf("value = %s", res.Value)
	}
}

func TestGetMissIsNotAnError(t *testing.T) {
	store := openTestStore(t)
	res, err := store.Get("absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if res.Hit {
		t.Fatal("absent key must miss")
	}
}

func TestSetOverwritesExistingKey(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("k", []byte("first"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set("k", []byte("second"), time.Minute); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	res, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(res.Value) != "second" {
		t.Fatalf("value = %s, want latest write", res.Value)
	}
}

func TestExpiredEntryIsStaleThenPruned(t *testing.T) {
	store := openTestStore(t)
	if err := store.Set("k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Backdate the row past its TTL instead of sleeping.
	if _, err := store.db.Exec("UPDATE upstream_cache SET created_at = created_at - 10 WHERE key = ?", "k"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	res, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !res.Hit || !res.Stale {
		t.Fatalf("hit=%v stale=%v, want a stale hit", res.Hit, res.Stale)
	}

	if err := store.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	res, err = store.Get("k")
	if err != nil {
		t.Fatalf("Get after prune: %v", err)
	}
	if res.Hit {
		t.Fatal("pruned entry must miss")
	}
}

func TestCloseNilStoreIsSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("Close on nil store: %v", err)
	}
}
