// ABOUTME: Package documentation for assistant
// ABOUTME: Describes the turn orchestrator and the AI service client

// Package assistant drives conversation turns against the AI service.
//
// The Orchestrator owns the per-chat turn: it records the user message,
// runs the thread against the provisioned assistant, polls the run under a
// bounded policy, dispatches requires_action tool calls through the tool
// registry, and records and returns the final reply. RunTurn never returns
// an error; failure modes become user-safe reply text.
//
// OpenAIClient implements the thread and run API over HTTP, with the
// provisioned assistant id cached on disk between restarts.
package assistant
