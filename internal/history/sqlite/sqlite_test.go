package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loykin/rtmon/internal/history"
)

func TestSQLiteSink_File(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	ctx := context.Background()
	task := history.Task{PID: 100, C: 200, T: 500}
	if err := sink.Send(ctx, history.NewEvent(history.EventRegistered, task)); err != nil {
		t.Fatalf("Failed to send registered event: %v", err)
	}
	task.Periods = 12
	task.Reason = "cancelled"
	if err := sink.Send(ctx, history.NewEvent(history.EventCancelled, task)); err != nil {
		t.Fatalf("Failed to send cancelled event: %v", err)
	}

	n, err := sink.Count(ctx, 100)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Send(ctx, history.NewEvent(history.EventRetired, history.Task{PID: 200, C: 1, T: 2, Reason: "exited"})); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
	n, err := sink.Count(ctx, 200)
	if err != nil || n != 1 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestSQLiteSink_DuplicateIDRejected(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sink.Close() }()

	e := history.NewEvent(history.EventRegistered, history.Task{PID: 1, C: 1, T: 1})
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if err := sink.Send(context.Background(), e); err == nil {
		t.Fatal("expected primary key violation on duplicate event id")
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSQLiteSink_ContextCancellation(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sink.Send(ctx, history.NewEvent(history.EventShutdown, history.Task{PID: 9})); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
