package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sendrec/clipintake/internal/generate"
	"github.com/sendrec/clipintake/internal/intake"
	"github.com/sendrec/clipintake/internal/webhook"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []webhook.Event
	err    error
}

func (m *mockDispatcher) Dispatch(_ context.Context, event webhook.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockDispatcher) names() map[string]webhook.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName := make(map[string]webhook.Event, len(m.events))
	for _, e := range m.events {
		byName[e.Name] = e
	}
	return byName
}

func TestEvents_DispatchesTransitions(t *testing.T) {
	d := &mockDispatcher{}
	events := NewEvents(context.Background(), d)
	fixed := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	events.now = func() time.Time { return fixed }

	events.Progress(0, 50)
	events.Committed(intake.Clip{Slot: 2, File: intake.File{Name: "intro.mp4", ContentType: "video/mp4", Size: 42}})
	events.Rejected(1, "Video must be 30 seconds or less")
	events.Discarded(intake.File{Path: "/tmp/clip"})
	events.GenerateChanged(generate.StateVerificationRequired)
	events.Close()

	byName := d.names()
	if len(byName) != 3 {
		t.Fatalf("expected 3 events, got %d: %v", len(byName), byName)
	}

	committed, ok := byName["clip.committed"]
	if !ok {
		t.Fatal("missing clip.committed")
	}
	if committed.Data["slot"] != 2 || committed.Data["name"] != "intro.mp4" {
		t.Errorf("unexpected committed data: %v", committed.Data)
	}
	if !committed.Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %s, want %s", committed.Timestamp, fixed)
	}

	rejected, ok := byName["clip.rejected"]
	if !ok {
		t.Fatal("missing clip.rejected")
	}
	if rejected.Data["message"] != "Video must be 30 seconds or less" {
		t.Errorf("unexpected rejected data: %v", rejected.Data)
	}

	if _, ok := byName["generate.verification_required"]; !ok {
		t.Error("missing generate.verification_required")
	}
}

func TestEvents_DispatchErrorIsLogged(t *testing.T) {
	d := &mockDispatcher{err: errors.New("connection refused")}
	events := NewEvents(context.Background(), d)

	events.Rejected(0, "Could not read video metadata")
	events.Close()

	if len(d.names()) != 1 {
		t.Error("expected the failed event to still be attempted")
	}
}
