package testsupport

import (
	"testing"

	"phylobench/internal/config"
	"phylobench/internal/ledger"
)

// MustOpenStore opens the ledger for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
