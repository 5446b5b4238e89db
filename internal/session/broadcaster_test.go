// ABOUTME: Tests for the event broadcaster
// ABOUTME: Covers chat fan-out, connection scoping, tool label translation, and error events

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

type sinkEvent struct {
	Event   string
	Payload any
}

func (s *recordingSink) Emit(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Event: event, Payload: payload})
}

func (s *recordingSink) recorded() []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkEvent(nil), s.events...)
}

func newBroadcasterWithConns(t *testing.T, connIDs ...string) (*Registry, *Broadcaster, map[string]*recordingSink) {
	t.Helper()
	r := NewRegistry(nil)
	b := NewBroadcaster(r, nil)
	sinks := make(map[string]*recordingSink, len(connIDs))
	for _, id := range connIDs {
		r.Register(id)
		sink := &recordingSink{}
		b.AttachSink(id, sink)
		sinks[id] = sink
	}
	return r, b, sinks
}

func TestEmitToChat_ReachesAllMembers(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-a", "conn-b", "conn-c")
	r.JoinChat("conn-a", "chat-1")
	r.JoinChat("conn-b", "chat-1")
	r.JoinChat("conn-c", "chat-2")

	b.EmitToChat("chat-1", EventMessage, map[string]any{"chat_id": "chat-1", "content": "hi"})

	assert.Len(t, sinks["conn-a"].recorded(), 1)
	assert.Len(t, sinks["conn-b"].recorded(), 1)
	assert.Empty(t, sinks["conn-c"].recorded())
}

// gatedSink blocks every Emit until release is closed.
type gatedSink struct {
	recordingSink
	release chan struct{}
}

func (s *gatedSink) Emit(event string, payload any) {
	<-s.release
	s.recordingSink.Emit(event, payload)
}

func TestEmitToChat_StalledSinkDoesNotDelayOthers(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-fast")
	stalled := &gatedSink{release: make(chan struct{})}
	r.Register("conn-stalled")
	b.AttachSink("conn-stalled", stalled)
	r.JoinChat("conn-fast", "chat-1")
	r.JoinChat("conn-stalled", "chat-1")

	done := make(chan struct{})
	go func() {
		b.EmitToChat("chat-1", EventMessage, map[string]any{"content": "hi"})
		close(done)
	}()

	// The fast member receives the event while the stalled sink is still
	// holding its write.
	require.Eventually(t, func() bool {
		return len(sinks["conn-fast"].recorded()) == 1
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("EmitToChat returned before the stalled sink was released")
	default:
	}

	close(stalled.release)
	<-done
	assert.Len(t, stalled.recorded(), 1)
}

func TestEmitToChat_EmptyMemberSetIsNoOp(t *testing.T) {
	_, b, _ := newBroadcasterWithConns(t)
	b.EmitToChat("chat-nobody", EventMessage, nil) // must not panic
}

func TestEmitToConnection_ScopedToOne(t *testing.T) {
	_, b, sinks := newBroadcasterWithConns(t, "conn-a", "conn-b")

	b.EmitToConnection("conn-a", EventChats, map[string]any{"chats": []any{}})

	require.Len(t, sinks["conn-a"].recorded(), 1)
	assert.Equal(t, EventChats, sinks["conn-a"].recorded()[0].Event)
	assert.Empty(t, sinks["conn-b"].recorded())
}

func TestEmitToConnection_UnknownConnectionDropped(t *testing.T) {
	_, b, _ := newBroadcasterWithConns(t)
	b.EmitToConnection("gone", EventChats, nil) // must not panic
}

func TestNotifyToolCall_TranslatesLabel(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-a")
	r.JoinChat("conn-a", "chat-1")

	b.NotifyToolCall("chat-1", "search_places")

	events := sinks["conn-a"].recorded()
	require.Len(t, events, 1)
	assert.Equal(t, EventToolCall, events[0].Event)

	payload := events[0].Payload.(map[string]any)
	assert.Equal(t, "Searching the map", payload["tool_data"])
	assert.Equal(t, "chat-1", payload["chat_id"])
}

func TestNotifyToolCall_UnknownToolUsesFallback(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-a")
	r.JoinChat("conn-a", "chat-1")

	b.NotifyToolCall("chat-1", "mystery_tool")

	events := sinks["conn-a"].recorded()
	require.Len(t, events, 1)
	payload := events[0].Payload.(map[string]any)
	assert.Equal(t, fallbackToolLabel, payload["tool_data"])
}

func TestEmitError_CarriesCurrentChatID(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-a")
	r.JoinChat("conn-a", "chat-1")

	b.EmitError("conn-a", "something broke")

	events := sinks["conn-a"].recorded()
	require.Len(t, events, 1)
	payload := events[0].Payload.(map[string]any)
	assert.Equal(t, "chat-1", payload["chat_id"])
	assert.Equal(t, "something broke", payload["error"])
}

func TestEmitError_NoChatIsNull(t *testing.T) {
	_, b, sinks := newBroadcasterWithConns(t, "conn-a")

	b.EmitError("conn-a", "bad request")

	events := sinks["conn-a"].recorded()
	require.Len(t, events, 1)
	payload := events[0].Payload.(map[string]any)
	assert.Nil(t, payload["chat_id"])
}

func TestDetachSink_StopsDelivery(t *testing.T) {
	r, b, sinks := newBroadcasterWithConns(t, "conn-a")
	r.JoinChat("conn-a", "chat-1")

	b.DetachSink("conn-a")
	b.EmitToChat("chat-1", EventMessage, nil)

	assert.Empty(t, sinks["conn-a"].recorded())
}
