package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/rtmon/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	task := history.Task{PID: 4242, C: 100, T: 250}
	if err := sink.Send(ctx, history.NewEvent(history.EventRegistered, task)); err != nil {
		t.Fatalf("Failed to send registered event: %v", err)
	}
	task.Periods = 40
	task.Reason = "exited"
	if err := sink.Send(ctx, history.NewEvent(history.EventRetired, task)); err != nil {
		t.Fatalf("Failed to send retired event: %v", err)
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM task_history WHERE pid = $1", task.PID).Scan(&count); err != nil {
		t.Fatalf("Failed to query task_history: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events in history, got %d", count)
	}

	var reason string
	if err := sink.db.QueryRowContext(ctx, "SELECT reason FROM task_history WHERE pid = $1 AND event = 'retired'", task.PID).Scan(&reason); err != nil {
		t.Fatalf("Failed to query reason: %v", err)
	}
	if reason != "exited" {
		t.Errorf("reason = %q", reason)
	}
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
