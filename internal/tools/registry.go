// ABOUTME: Thread-safe registry mapping tool names to validated handlers.
// ABOUTME: Converts handler failures into structured error payloads that feed back into the run.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// Definition describes one tool to the AI service's function-calling schema.
type Definition struct {
	Name            string
	Description     string
	InputSchemaJSON string
}

// Handler executes one tool call. The chat id provides conversation context
// for handlers that read chat state (location, stored places, history).
type Handler func(ctx context.Context, chatID string, args json.RawMessage) (any, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Registry maintains the set of registered tools. New tools register
// independently; dispatch is by name, never by branching on the caller side.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tool-registry"),
	}
}

// Register adds a tool. Returns ErrToolCollision if the name is taken.
func (r *Registry) Register(def Definition, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: tool %q already registered", ErrToolCollision, def.Name)
	}
	r.tools[def.Name] = &Tool{Definition: def, Handler: handler}
	return nil
}

// Definitions returns all registered tool definitions, sorted by name so the
// schema handed to the AI service is deterministic.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke dispatches one tool call and always returns a JSON payload.
// Unknown tool names and handler failures become {"error": ...} results;
// tool failures must not abort the run, they become conversation context
// the AI service can react to.
func (r *Registry) Invoke(ctx context.Context, name, chatID string, args json.RawMessage) json.RawMessage {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown tool invoked", "tool", name, "chat_id", chatID)
		return errorPayload(fmt.Sprintf("Tool '%s' not recognized.", name))
	}

	result, err := tool.Handler(ctx, chatID, args)
	if err != nil {
		r.logger.Error("tool execution failed",
			"tool", name,
			"chat_id", chatID,
			"error", err,
		)
		return errorPayload(err.Error())
	}

	payload, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("tool result not serializable", "tool", name, "error", err)
		return errorPayload(fmt.Sprintf("Error encoding result for tool '%s'.", name))
	}
	return payload
}

// errorPayload builds the structured {"error": ...} result.
func errorPayload(msg string) json.RawMessage {
	payload, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		// A plain string can always be marshaled; this is unreachable.
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return payload
}
