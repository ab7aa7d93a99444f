package storage

import (
	"context"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLite(":memory:", "test")
	if err != nil {
		t.Fatalf("failed to create test sqlite backend: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSQLiteBackend_NotFound(t *testing.T) {
	b := newTestSQLite(t)
	if _, err := b.Read(context.Background()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteBackend_ReplaceDocument(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	if err := b.Write(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.Write(ctx, []byte(`{"b":2}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := b.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `{"b":2}` {
		t.Errorf("got %s", got)
	}

	var rows int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM documents`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("expected a single document row, got %d", rows)
	}
}

func TestSQLiteBackend_StoreRoundTrip(t *testing.T) {
	s := New(newTestSQLite(t))
	ctx := context.Background()
	if !s.Save(ctx, testObservations()) {
		t.Fatal("Save returned false")
	}
	snap, info := s.Load(ctx)
	if !info.Found || len(snap) != 3 {
		t.Errorf("got %d entries, info %+v", len(snap), info)
	}
}

func TestSQLiteBackend_DefaultPath(t *testing.T) {
	b, err := NewSQLite("", "")
	if err != nil {
		t.Fatalf("NewSQLite with empty path: %v", err)
	}
	defer b.Close()
}
