// ABOUTME: The conversation orchestrator: one serialized run-and-poll turn per chat.
// ABOUTME: RunTurn never fails to its caller; every failure mode degrades to reply text.

package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/chowline/internal/store"
	"github.com/2389/chowline/internal/tools"
)

// Notifier tells collaborators that a tool is being used on a chat's behalf.
type Notifier interface {
	NotifyToolCall(chatID, toolName string)
}

// Options tunes the orchestrator's polling policy.
type Options struct {
	PollInterval    time.Duration
	PollMaxAttempts int
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 750 * time.Millisecond
	}
	if o.PollMaxAttempts <= 0 {
		o.PollMaxAttempts = 240
	}
}

// Orchestrator drives conversation turns against the AI service. Turns on
// the same chat are serialized; turns on distinct chats run concurrently.
type Orchestrator struct {
	client      Client
	store       store.Store
	tools       *tools.Registry
	notifier    Notifier
	assistantID string
	opts        Options
	locks       *chatLocks
	logger      *slog.Logger
}

// NewOrchestrator wires a turn orchestrator.
func NewOrchestrator(client Client, st store.Store, reg *tools.Registry, notifier Notifier, assistantID string, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Orchestrator{
		client:      client,
		store:       st,
		tools:       reg,
		notifier:    notifier,
		assistantID: assistantID,
		opts:        opts,
		locks:       newChatLocks(),
		logger:      logger.With("component", "orchestrator"),
	}
}

// RunTurn processes one user message for the chat and returns the reply
// text. It appends both the user message and the reply to the chat history.
// It never returns an error: terminal run states and upstream failures all
// degrade to a user-safe reply that is itself recorded as the assistant's
// message.
func (o *Orchestrator) RunTurn(ctx context.Context, chatID, userText string) string {
	o.locks.acquire(chatID)
	defer o.locks.release(chatID)

	if err := o.store.AppendChatMessage(ctx, chatID, store.ChatMessage{
		Role:    store.RoleUser,
		Content: userText,
	}); err != nil {
		o.logger.Error("failed to record user message", "chat_id", chatID, "error", err)
	}

	reply, err := o.runTurn(ctx, chatID, userText)
	if err != nil {
		o.logger.Error("turn failed", "chat_id", chatID, "error", err)
		reply = fmt.Sprintf("Error: %v", err)
	}

	if err := o.store.AppendChatMessage(ctx, chatID, store.ChatMessage{
		Role:    store.RoleAssistant,
		Content: reply,
	}); err != nil {
		o.logger.Error("failed to record assistant message", "chat_id", chatID, "error", err)
	}
	return reply
}

func (o *Orchestrator) runTurn(ctx context.Context, chatID, userText string) (string, error) {
	threadID, err := o.threadFor(ctx, chatID)
	if err != nil {
		return "", err
	}

	if err := o.client.AddUserMessage(ctx, threadID, userText); err != nil {
		return "", err
	}

	run, err := o.client.CreateRun(ctx, threadID, o.assistantID)
	if err != nil {
		return "", err
	}
	o.logger.Debug("run started", "chat_id", chatID, "run_id", run.ID)

	for attempt := 0; attempt < o.opts.PollMaxAttempts; attempt++ {
		switch {
		case run.Status == StatusCompleted:
			return o.client.LatestAssistantMessage(ctx, threadID)

		case run.Status == StatusRequiresAction:
			if err := o.dispatchToolCalls(ctx, chatID, threadID, run); err != nil {
				return "", err
			}

		case run.Status.Terminal():
			o.logger.Error("run reached terminal state",
				"chat_id", chatID,
				"run_id", run.ID,
				"status", run.Status,
			)
			return fmt.Sprintf("Error: assistant entered failed state (state %s), start a new chat", run.Status), nil

		default:
			select {
			case <-time.After(o.opts.PollInterval):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if run, err = o.client.GetRun(ctx, threadID, run.ID); err != nil {
			return "", err
		}
	}

	o.logger.Error("run polling exhausted",
		"chat_id", chatID,
		"run_id", run.ID,
		"attempts", o.opts.PollMaxAttempts,
	)
	return fmt.Sprintf("Error: assistant run did not finish after %d polling attempts, start a new chat", o.opts.PollMaxAttempts), nil
}

// threadFor returns the chat's thread id, creating and persisting one on
// first use.
func (o *Orchestrator) threadFor(ctx context.Context, chatID string) (string, error) {
	chat, err := o.store.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat == nil {
		return "", fmt.Errorf("chat not found: %s", chatID)
	}
	if chat.ThreadID != "" {
		return chat.ThreadID, nil
	}

	threadID, err := o.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	if err := o.store.SetChatThread(ctx, chatID, threadID); err != nil {
		return "", err
	}
	o.logger.Info("created thread", "chat_id", chatID, "thread_id", threadID)
	return threadID, nil
}

// dispatchToolCalls resolves every pending call concurrently and submits the
// outputs back to the run in one batch. Individual tool failures are already
// folded into {"error": ...} payloads by the registry.
func (o *Orchestrator) dispatchToolCalls(ctx context.Context, chatID, threadID string, run *Run) error {
	outputs := make([]ToolOutput, len(run.ToolCalls))

	var wg sync.WaitGroup
	for i, call := range run.ToolCalls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.logger.Debug("dispatching tool call",
				"chat_id", chatID,
				"tool", call.Name,
				"call_id", call.ID,
			)
			if o.notifier != nil {
				o.notifier.NotifyToolCall(chatID, call.Name)
			}
			result := o.tools.Invoke(ctx, call.Name, chatID, call.Arguments)
			outputs[i] = ToolOutput{ToolCallID: call.ID, Output: string(result)}
		}()
	}
	wg.Wait()

	return o.client.SubmitToolOutputs(ctx, threadID, run.ID, outputs)
}
