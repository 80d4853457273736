package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"unisearch/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(id string, at time.Time, succeed bool) domain.DispatchResult {
	attempts := []domain.InvocationAttempt{
		{Provider: "serper", Outcome: domain.OutcomeTimeout, Detail: "serper: timed out after 30s", Duration: 30 * time.Second},
	}
	if succeed {
		attempts = append(attempts, domain.InvocationAttempt{Provider: "brave", Outcome: domain.OutcomeSuccess, Output: "r", Duration: 2 * time.Second})
	}
	return domain.DispatchResult{
		ID:        id,
		Selection: domain.SelectionAuto,
		Query:     domain.Query{Text: "go 1.26", Mode: domain.ModeCurrent, Count: 5},
		Attempts:  attempts,
		StartedAt: at,
		Duration:  32 * time.Second,
	}
}

func TestSQLiteStore_RecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.Record(ctx, sampleResult("d1", base, true)); err != nil {
		t.Fatalf("Record d1: %v", err)
	}
	if err := store.Record(ctx, sampleResult("d2", base.Add(500*time.Millisecond), false)); err != nil {
		t.Fatalf("Record d2: %v", err)
	}
	if err := store.Record(ctx, sampleResult("d3", base.Add(time.Second), true)); err != nil {
		t.Fatalf("Record d3: %v", err)
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != "d3" || entries[1].ID != "d2" {
		t.Errorf("order = [%s %s], want [d3 d2]", entries[0].ID, entries[1].ID)
	}

	failed := entries[1]
	if failed.Status != "failure" {
		t.Errorf("Status = %q, want failure", failed.Status)
	}
	if failed.ErrorCode != domain.CodeExhausted {
		t.Errorf("ErrorCode = %q, want %q", failed.ErrorCode, domain.CodeExhausted)
	}
	if failed.Provider != "" {
		t.Errorf("Provider = %q, want empty", failed.Provider)
	}

	ok := entries[0]
	if ok.Status != "success" || ok.Provider != "brave" {
		t.Errorf("got status=%q provider=%q, want success/brave", ok.Status, ok.Provider)
	}
	if ok.Mode != domain.ModeCurrent || ok.Query != "go 1.26" || ok.Selection != "auto" {
		t.Errorf("unexpected query fields: %+v", ok)
	}
	if len(ok.Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2", len(ok.Attempts))
	}
	if ok.Attempts[0].ErrorDetail != "serper: timed out after 30s" || ok.Attempts[0].DurationMS != 30000 {
		t.Errorf("Attempts[0] = %+v", ok.Attempts[0])
	}
	if !ok.CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want %v", ok.CreatedAt, base.Add(time.Second))
	}
	if ok.DurationMS != 32000 {
		t.Errorf("DurationMS = %d, want 32000", ok.DurationMS)
	}
}

func TestSQLiteStore_RecentEmpty(t *testing.T) {
	store := newTestStore(t)
	entries, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %#v, want empty non-nil slice", entries)
	}
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	r := sampleResult("dup", time.Now(), true)

	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("Record: %v", err)
	}
	err := store.Record(ctx, r)
	if !errors.Is(err, domain.ErrHistoryStore) {
		t.Fatalf("second Record error = %v, want ErrHistoryStore", err)
	}
}

func TestSQLiteStore_ReopenKeepsRows(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Record(context.Background(), sampleResult("keep", time.Now(), true)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "keep" {
		t.Errorf("entries = %+v, want one entry 'keep'", entries)
	}
}
