package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}

	for _, table := range []string{"events", "leases"} {
		var name string
		err = store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("failed to query sqlite_master for %s table: %v", table, err)
		}
	}

	rows, err := store.db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name='events'")
	if err != nil {
		t.Fatalf("failed to list indices: %v", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan index name: %v", err)
		}
		found[name] = true
	}
	for _, idx := range []string{"idx_events_ts_ingest", "idx_events_correlation", "idx_events_ki_name"} {
		if !found[idx] {
			t.Errorf("%s not found", idx)
		}
	}

	// Reopening an existing database must not fail the migration.
	again, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	again.Close()
}
