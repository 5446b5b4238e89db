// ABOUTME: Tracks live connections and their current chat membership.
// ABOUTME: Central routing state for fan-out of chat events to member connections.

package session

import (
	"log/slog"
	"sync"
)

// Registry tracks which live connections belong to which chat. A connection
// is a member of at most one chat at a time: joining a chat removes the
// connection from its previous chat's member set.
//
// All methods are safe for concurrent use; this is the only shared mutable
// state touched by independent connection handlers.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]string              // connection id -> chat id ("" = none)
	members     map[string]map[string]struct{} // chat id -> member connection ids
	logger      *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		connections: make(map[string]string),
		members:     make(map[string]map[string]struct{}),
		logger:      logger.With("component", "session-registry"),
	}
}

// Register adds a connection with no chat association.
// Registering an already-registered connection is a no-op.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[connID]; exists {
		return
	}

	r.connections[connID] = ""
	r.logger.Info("connection registered",
		"connection_id", connID,
		"total_connections", len(r.connections),
	)
}

// Unregister removes the connection and its chat membership, if any.
// Empty member sets are dropped.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chatID, exists := r.connections[connID]
	if !exists {
		return
	}

	r.leaveLocked(connID, chatID)
	delete(r.connections, connID)
	r.logger.Info("connection unregistered",
		"connection_id", connID,
		"total_connections", len(r.connections),
	)
}

// JoinChat associates the connection with chatID. If the connection belonged
// to a different chat it is removed from that chat's member set first, so a
// connection never appears in two member sets.
func (r *Registry) JoinChat(connID, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, exists := r.connections[connID]
	if !exists {
		// Joining an unknown connection registers it first.
		r.connections[connID] = ""
	}
	if previous == chatID {
		return
	}

	r.leaveLocked(connID, previous)

	r.connections[connID] = chatID
	if _, ok := r.members[chatID]; !ok {
		r.members[chatID] = make(map[string]struct{})
	}
	r.members[chatID][connID] = struct{}{}

	r.logger.Debug("connection joined chat",
		"connection_id", connID,
		"chat_id", chatID,
		"member_count", len(r.members[chatID]),
	)
}

// leaveLocked removes connID from chatID's member set. Must be called with mu held.
func (r *Registry) leaveLocked(connID, chatID string) {
	if chatID == "" {
		return
	}
	set, ok := r.members[chatID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.members, chatID)
	}
}

// MembersOf returns the connection ids currently in the chat's member set.
// The returned slice is a copy; an empty slice means no members.
func (r *Registry) MembersOf(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[chatID]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ChatOf returns the connection's current chat id. The second return value
// is false when the connection is not in any chat.
func (r *Registry) ChatOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chatID := r.connections[connID]
	return chatID, chatID != ""
}
