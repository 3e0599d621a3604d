package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestEventEmission(t *testing.T) {
	rec := &recorder{}
	logger := New(10, WithHandler(rec.handle))

	logger.Log(Event{
		Action:      ActionSignedIn,
		Result:      ResultSuccess,
		PrincipalID: "uid-123",
		Email:       "alice@example.com",
	})
	logger.Close()

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].PrincipalID != "uid-123" {
		t.Errorf("expected uid-123, got %s", events[0].PrincipalID)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if events[0].ID == "" {
		t.Error("id should be set")
	}
}

func TestMultipleHandlers(t *testing.T) {
	rec1, rec2 := &recorder{}, &recorder{}
	logger := New(10, WithHandler(rec1.handle), WithHandler(rec2.handle))

	logger.Log(Event{Action: ActionSignedOut, Result: ResultSuccess})
	logger.Close()

	if len(rec1.all()) != 1 {
		t.Fatalf("handler1: expected 1 event, got %d", len(rec1.all()))
	}
	if len(rec2.all()) != 1 {
		t.Fatalf("handler2: expected 1 event, got %d", len(rec2.all()))
	}
}

func TestCloseFlushesQueue(t *testing.T) {
	var mu sync.Mutex
	var count int

	logger := New(5, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
		time.Sleep(10 * time.Millisecond) // Simulate slow handler
	}))

	for i := 0; i < 5; i++ {
		logger.Log(Event{Action: ActionAdminUserFetched, Result: ResultSuccess})
	}
	logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected 5 events processed, got %d", count)
	}
}

func TestLogAfterCloseIsDropped(t *testing.T) {
	rec := &recorder{}
	logger := New(1, WithHandler(rec.handle))
	logger.Close()
	logger.Close()

	logger.Log(Event{Action: ActionSignedIn, Result: ResultSuccess})
	if len(rec.all()) != 0 {
		t.Error("events logged after Close should be dropped")
	}
}

func TestNilLogger(t *testing.T) {
	var logger *Logger
	logger.Log(Event{Action: ActionSignedIn})
}

func TestWriterHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithWriterHandler(&buf))
	logger.Log(Event{
		Action:      ActionAdminUserFetchFailed,
		Result:      ResultFailure,
		PrincipalID: "uid-1",
		Error:       "Admin account not found. Please contact support.",
	})
	logger.Close()

	var e Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if e.Action != ActionAdminUserFetchFailed || e.Error == "" {
		t.Errorf("decoded event = %+v", e)
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithSlogHandler(slog.New(slog.NewTextHandler(&buf, nil))))
	logger.Log(Event{Action: ActionInactivityLogout, Result: ResultSuccess, PrincipalID: "uid-9"})
	logger.Close()

	out := buf.String()
	if !strings.Contains(out, "action=inactivity_logout") || !strings.Contains(out, "principal_id=uid-9") {
		t.Errorf("slog output = %q", out)
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-12345")
	if got := RequestID(ctx); got != "req-12345" {
		t.Errorf("expected req-12345, got %s", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("expected empty request id, got %s", got)
	}
}
