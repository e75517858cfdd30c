package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	delay   time.Duration
	done    chan struct{}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.done != nil {
		m.done <- struct{}{}
	}
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func waitDone(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("emit was not called")
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	// Should not panic
	EmitAsync(nil, zap.NewNop(), &Event{Type: "test"})
}

func TestEmitAsync_NilEvent(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, zap.NewNop(), nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{done: make(chan struct{}, 1)}
	event := &Event{Type: EventOTPRequested, FormID: "form-1", Source: "intake"}
	EmitAsync(emitter, nil, event)
	waitDone(t, emitter.done)

	events := emitter.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].FormID != "form-1" || events[0].Type != EventOTPRequested {
		t.Errorf("event = %+v", events[0])
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped")
	}
}

func TestEmitAsync_ErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	emitter := &mockEventEmitter{emitErr: errors.New("boom"), done: make(chan struct{}, 1)}
	EmitAsync(emitter, zap.New(core), &Event{Type: "test"})
	waitDone(t, emitter.done)

	deadline := time.Now().Add(time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
	if got := logs.All()[0].Message; got != "telemetry: async emit failed" {
		t.Errorf("message = %q", got)
	}
}

func TestEmitAsync_DoesNotBlockCaller(t *testing.T) {
	emitter := &mockEventEmitter{delay: 200 * time.Millisecond}
	start := time.Now()
	EmitAsync(emitter, zap.NewNop(), &Event{Type: "slow"})
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("EmitAsync blocked for %v", elapsed)
	}
}
