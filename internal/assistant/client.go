// ABOUTME: AI service client contract: threads, runs, tool output submission.
// ABOUTME: The orchestrator depends on this interface, never on the HTTP client directly.

package assistant

import (
	"context"
	"encoding/json"
)

// RunStatus is the lifecycle state of an AI run.
type RunStatus string

const (
	StatusQueued         RunStatus = "queued"
	StatusInProgress     RunStatus = "in_progress"
	StatusRequiresAction RunStatus = "requires_action"
	StatusCompleted      RunStatus = "completed"
	StatusFailed         RunStatus = "failed"
	StatusExpired        RunStatus = "expired"
	StatusCancelled      RunStatus = "cancelled"
)

// Terminal reports whether the status ends the run without a reply.
func (s RunStatus) Terminal() bool {
	return s == StatusFailed || s == StatusExpired || s == StatusCancelled
}

// ToolCall is one pending function call attached to a requires_action run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolOutput is the result of one tool call, keyed back to its call id.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

// Run is a snapshot of a run's state. ToolCalls is populated only when the
// status is requires_action.
type Run struct {
	ID        string
	Status    RunStatus
	ToolCalls []ToolCall
}

// Client talks to the AI service's thread and run API.
type Client interface {
	// CreateThread starts an empty conversation thread and returns its id.
	CreateThread(ctx context.Context) (string, error)
	// AddUserMessage appends a user message to a thread.
	AddUserMessage(ctx context.Context, threadID, text string) error
	// CreateRun starts a run of the assistant over the thread.
	CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error)
	// GetRun fetches the current run state, including pending tool calls.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	// SubmitToolOutputs sends the batch of tool results back to a
	// requires_action run.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error
	// LatestAssistantMessage returns the text of the newest assistant
	// message on the thread.
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}
