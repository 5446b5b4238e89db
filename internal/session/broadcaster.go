// ABOUTME: In-memory fan-out of chat events to member connections.
// ABOUTME: Translates internal tool names into human-readable labels before broadcast.

package session

import (
	"log/slog"
	"sync"
)

// Sink delivers one event to one connection. Implementations must be safe
// for concurrent use; a websocket connection with a write lock qualifies.
type Sink interface {
	Emit(event string, payload any)
}

// Event names pushed from server to clients.
const (
	EventMessage  = "message"
	EventChats    = "chats"
	EventMessages = "messages"
	EventChatData = "chat_data"
	EventToolCall = "tool_call"
	EventError    = "error"
)

// toolLabels maps internal tool names to the human-readable text broadcast
// to clients while a turn is in progress. Clients never see raw tool names.
var toolLabels = map[string]string{
	"search_places":      "Searching the map",
	"describe_place":     "Getting more place details",
	"describe_images":    "Analyzing place photos",
	"extract_image_info": "Reading details from a photo",
	"fetch_chat_history": "Recollecting earlier conversation",
	"get_stored_places":  "Retrieving the places we have talked about",
	"get_reviews":        "Fetching reviews",
	"get_user_location":  "Getting your location",
	"search_website":     "Searching website content",
}

const fallbackToolLabel = "Looking something up"

// Broadcaster emits events to the connections in a chat's member set, and
// connection-scoped events to a single connection. It holds one Sink per
// registered connection.
type Broadcaster struct {
	registry *Registry
	mu       sync.RWMutex
	sinks    map[string]Sink
	logger   *slog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		sinks:    make(map[string]Sink),
		logger:   logger.With("component", "broadcaster"),
	}
}

// AttachSink associates a delivery sink with a connection id.
func (b *Broadcaster) AttachSink(connID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks[connID] = sink
}

// DetachSink removes the connection's sink. Subsequent emits to that
// connection are dropped.
func (b *Broadcaster) DetachSink(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sinks, connID)
}

// EmitToChat sends the event to every connection in the chat's member set.
// An empty member set is a no-op, not an error.
func (b *Broadcaster) EmitToChat(chatID, event string, payload any) {
	memberIDs := b.registry.MembersOf(chatID)
	if len(memberIDs) == 0 {
		return
	}

	// Copy sinks under the read lock, send outside it.
	b.mu.RLock()
	targets := make([]Sink, 0, len(memberIDs))
	for _, id := range memberIDs {
		if sink, ok := b.sinks[id]; ok {
			targets = append(targets, sink)
		}
	}
	b.mu.RUnlock()

	// Targets are emitted concurrently; a stalled connection delays only
	// its own delivery, never the other members'.
	var wg sync.WaitGroup
	for _, sink := range targets {
		sink := sink
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Emit(event, payload)
		}()
	}
	wg.Wait()

	b.logger.Debug("emitted chat event",
		"chat_id", chatID,
		"event", event,
		"member_count", len(targets),
	)
}

// EmitToConnection sends the event to a single connection. Unknown
// connection ids are dropped silently; the connection may have gone away.
func (b *Broadcaster) EmitToConnection(connID, event string, payload any) {
	b.mu.RLock()
	sink, ok := b.sinks[connID]
	b.mu.RUnlock()

	if !ok {
		b.logger.Debug("dropped event for unknown connection",
			"connection_id", connID,
			"event", event,
		)
		return
	}
	sink.Emit(event, payload)
}

// NotifyToolCall broadcasts a tool-use notification to the chat's members,
// translating the internal tool name into its human-readable label.
func (b *Broadcaster) NotifyToolCall(chatID, toolName string) {
	label, ok := toolLabels[toolName]
	if !ok {
		label = fallbackToolLabel
	}
	b.EmitToChat(chatID, EventToolCall, map[string]any{
		"chat_id":   chatID,
		"tool_data": label,
	})
}

// EmitError sends an error event scoped to the connection that caused it,
// carrying that connection's current chat id (null when none) for context.
func (b *Broadcaster) EmitError(connID, errText string) {
	var chatID any
	if id, ok := b.registry.ChatOf(connID); ok {
		chatID = id
	}
	b.EmitToConnection(connID, EventError, map[string]any{
		"chat_id": chatID,
		"error":   errText,
	})
}
