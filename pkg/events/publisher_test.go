package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records every delivered payload
type captureSink struct {
	mu        sync.Mutex
	payloads  [][]byte
	closed    bool
	delivered chan struct{}
}

func newCaptureSink() *captureSink {
	return &captureSink{delivered: make(chan struct{}, 64)}
}

func (s *captureSink) Send(ctx context.Context, key string, payload []byte) error {
	s.mu.Lock()
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()
	s.delivered <- struct{}{}
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *captureSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// blockingSink holds every Send until released
type blockingSink struct {
	release chan struct{}
	sent    chan struct{}
}

func (s *blockingSink) Send(ctx context.Context, key string, payload []byte) error {
	s.sent <- struct{}{}
	<-s.release
	return nil
}

func (s *blockingSink) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAsyncPublisherDelivers(t *testing.T) {
	sink := newCaptureSink()
	pub := NewAsyncPublisher(sink, 16, testLogger())
	defer pub.Close()

	event := NewUserCreated(uuid.New(), "alice@example.com", "alice", []string{"USER"}, true, "10.0.0.1", "test-agent")
	pub.Publish(event)

	select {
	case <-sink.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.payloads, 1)

	var got Event
	require.NoError(t, json.Unmarshal(sink.payloads[0], &got))
	assert.Equal(t, UserCreated, got.Kind)
	assert.Equal(t, event.UserID, got.UserID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "USER", got.Detail["roles"])
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	// sent is buffered past the queue capacity so draining the leftover
	// queued events after release never blocks the drain goroutine
	sink := &blockingSink{release: make(chan struct{}), sent: make(chan struct{}, 16)}
	pub := NewAsyncPublisher(sink, 2, testLogger())

	userID := uuid.New()

	// First event occupies the drain goroutine inside Send.
	pub.Publish(NewUserLoggedIn(userID, "a@example.com", "a", nil, "10.0.0.1", "ua"))
	<-sink.sent

	// These fill the queue and then overflow it; none of them may block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			pub.Publish(NewUserLoggedIn(userID, "a@example.com", "a", nil, "10.0.0.1", "ua"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(sink.release)
	pub.Close()
}

func TestAsyncPublisherCloseStopsDelivery(t *testing.T) {
	sink := newCaptureSink()
	pub := NewAsyncPublisher(sink, 16, testLogger())
	pub.Close()

	pub.Publish(NewPasswordChanged(uuid.New(), "a@example.com", "a", "10.0.0.1", "ua"))

	select {
	case <-sink.delivered:
		t.Fatal("event delivered after Close")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 0, sink.count())
	assert.True(t, sink.isClosed(), "Close must release the sink")
}

func TestEventConstructorsCoverClosedSet(t *testing.T) {
	userID := uuid.New()
	expires := time.Now().Add(time.Hour)

	tests := []struct {
		kind  Kind
		event Event
	}{
		{UserCreated, NewUserCreated(userID, "a@example.com", "a", []string{"USER"}, true, "ip", "ua")},
		{UserLoggedIn, NewUserLoggedIn(userID, "a@example.com", "a", []string{"USER"}, "ip", "ua")},
		{UserLoggedOut, NewUserLoggedOut(userID, "a@example.com", "a", "ip", "ua")},
		{PasswordChanged, NewPasswordChanged(userID, "a@example.com", "a", "ip", "ua")},
		{PasswordResetRequested, NewPasswordResetRequested(userID, "a@example.com", "a", expires, "ip", "ua")},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.event.Kind)
			assert.Equal(t, userID, tt.event.UserID)
			assert.NotEqual(t, uuid.Nil, tt.event.ID)
			assert.False(t, tt.event.OccurredAt.IsZero())
		})
	}
}
