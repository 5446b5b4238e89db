// ABOUTME: Tests for the conversation orchestrator
// ABOUTME: Uses a scripted AI client; covers tool dispatch, terminal runs, and turn serialization

package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chowline/internal/store"
	"github.com/2389/chowline/internal/tools"
)

// memStore implements the slice of store.Store the orchestrator touches.
type memStore struct {
	mu    sync.Mutex
	chats map[string]*store.Chat
}

func newMemStore(chats ...*store.Chat) *memStore {
	m := &memStore{chats: make(map[string]*store.Chat)}
	for _, c := range chats {
		m.chats[c.ID] = c
	}
	return m
}

func (m *memStore) CreateChat(ctx context.Context, loc *store.Location) (*store.Chat, error) {
	return nil, nil
}

func (m *memStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[chatID], nil
}

func (m *memStore) ListChats(ctx context.Context) ([]*store.Chat, error) { return nil, nil }

func (m *memStore) SetChatThread(ctx context.Context, chatID, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[chatID].ThreadID = threadID
	return nil
}

func (m *memStore) AppendChatMessage(ctx context.Context, chatID string, msg store.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return errors.New("no such chat")
	}
	chat.Messages = append(chat.Messages, msg)
	return nil
}

func (m *memStore) AppendChatPlaces(ctx context.Context, chatID string, placeIDs []string) error {
	return nil
}
func (m *memStore) SavePlaces(ctx context.Context, places []*store.Place) error { return nil }
func (m *memStore) GetPlace(ctx context.Context, placeID string) (*store.Place, error) {
	return nil, nil
}
func (m *memStore) SetPlacePhotos(ctx context.Context, placeID string, photos []store.Photo) error {
	return nil
}
func (m *memStore) GetPlaceSummary(ctx context.Context, placeID string) (*store.PlaceSummary, error) {
	return nil, nil
}
func (m *memStore) Close() error { return nil }

func (m *memStore) messages(chatID string) []store.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ChatMessage(nil), m.chats[chatID].Messages...)
}

// scriptedClient walks through a fixed sequence of run snapshots.
type scriptedClient struct {
	mu          sync.Mutex
	states      []*Run
	cursor      int
	reply       string
	userMsgs    []string
	submissions [][]ToolOutput
	createErr   error
}

func (c *scriptedClient) CreateThread(ctx context.Context) (string, error) {
	return "thread-1", nil
}

func (c *scriptedClient) AddUserMessage(ctx context.Context, threadID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userMsgs = append(c.userMsgs, text)
	return nil
}

func (c *scriptedClient) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	return c.next(), nil
}

func (c *scriptedClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	return c.next(), nil
}

func (c *scriptedClient) next() *Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := c.states[c.cursor]
	if c.cursor < len(c.states)-1 {
		c.cursor++
	}
	return run
}

func (c *scriptedClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions = append(c.submissions, outputs)
	return nil
}

func (c *scriptedClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	return c.reply, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyToolCall(chatID, toolName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, toolName)
}

func fastOptions() Options {
	return Options{PollInterval: time.Millisecond, PollMaxAttempts: 50}
}

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(tools.Definition{Name: "lookup"},
		func(ctx context.Context, chatID string, args json.RawMessage) (any, error) {
			return map[string]string{"found": "yes"}, nil
		}))
	return r
}

func TestRunTurn_SimpleCompletion(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1"})
	client := &scriptedClient{
		states: []*Run{
			{ID: "run-1", Status: StatusQueued},
			{ID: "run-1", Status: StatusInProgress},
			{ID: "run-1", Status: StatusCompleted},
		},
		reply: "Try the taco place on 5th.",
	}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	reply := o.RunTurn(context.Background(), "chat-1", "find tacos")

	assert.Equal(t, "Try the taco place on 5th.", reply)
	assert.Equal(t, []string{"find tacos"}, client.userMsgs)

	msgs := st.messages("chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, reply, msgs[1].Content)
}

func TestRunTurn_CreatesAndPersistsThread(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1"})
	client := &scriptedClient{
		states: []*Run{{ID: "run-1", Status: StatusCompleted}},
		reply:  "ok",
	}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	o.RunTurn(context.Background(), "chat-1", "hello")

	chat, _ := st.GetChat(context.Background(), "chat-1")
	assert.Equal(t, "thread-1", chat.ThreadID)
}

func TestRunTurn_DispatchesToolCallsInOneBatch(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1", ThreadID: "thread-1"})
	client := &scriptedClient{
		states: []*Run{
			{ID: "run-1", Status: StatusRequiresAction, ToolCalls: []ToolCall{
				{ID: "call-1", Name: "lookup", Arguments: json.RawMessage(`{}`)},
				{ID: "call-2", Name: "unknown_tool", Arguments: json.RawMessage(`{}`)},
			}},
			{ID: "run-1", Status: StatusCompleted},
		},
		reply: "done",
	}
	notifier := &recordingNotifier{}
	o := NewOrchestrator(client, st, newRegistry(t), notifier, "asst-1", fastOptions(), nil)

	reply := o.RunTurn(context.Background(), "chat-1", "go")

	assert.Equal(t, "done", reply)
	require.Len(t, client.submissions, 1)
	outputs := client.submissions[0]
	require.Len(t, outputs, 2)

	// Outputs keep call order and call ids
	assert.Equal(t, "call-1", outputs[0].ToolCallID)
	assert.JSONEq(t, `{"found":"yes"}`, outputs[0].Output)

	// Unknown tools come back as error payloads, not failures
	assert.Equal(t, "call-2", outputs[1].ToolCallID)
	assert.JSONEq(t, `{"error":"Tool 'unknown_tool' not recognized."}`, outputs[1].Output)

	assert.ElementsMatch(t, []string{"lookup", "unknown_tool"}, notifier.calls)
}

func TestRunTurn_TerminalStateBecomesReply(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1", ThreadID: "thread-1"})
	client := &scriptedClient{
		states: []*Run{{ID: "run-1", Status: StatusFailed}},
	}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	reply := o.RunTurn(context.Background(), "chat-1", "go")

	assert.Equal(t, "Error: assistant entered failed state (state failed), start a new chat", reply)

	// The error text is recorded as the assistant's message
	msgs := st.messages("chat-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, reply, msgs[1].Content)
}

func TestRunTurn_PollExhaustion(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1", ThreadID: "thread-1"})
	client := &scriptedClient{
		states: []*Run{{ID: "run-1", Status: StatusInProgress}},
	}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1",
		Options{PollInterval: time.Millisecond, PollMaxAttempts: 3}, nil)

	reply := o.RunTurn(context.Background(), "chat-1", "go")

	assert.Contains(t, reply, "did not finish after 3 polling attempts")
}

func TestRunTurn_ClientErrorNeverPropagates(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1", ThreadID: "thread-1"})
	client := &scriptedClient{createErr: errors.New("service unavailable")}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	reply := o.RunTurn(context.Background(), "chat-1", "go")

	assert.Equal(t, "Error: service unavailable", reply)
}

func TestRunTurn_UnknownChat(t *testing.T) {
	st := newMemStore()
	client := &scriptedClient{states: []*Run{{ID: "run-1", Status: StatusCompleted}}}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	reply := o.RunTurn(context.Background(), "chat-ghost", "go")

	assert.Equal(t, "Error: chat not found: chat-ghost", reply)
}

func TestRunTurn_SameChatSerialized(t *testing.T) {
	st := newMemStore(&store.Chat{ID: "chat-1", ThreadID: "thread-1"})

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	client := &trackingClient{
		enter: func() {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
		},
		exit: func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	}
	o := NewOrchestrator(client, st, newRegistry(t), nil, "asst-1", fastOptions(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.RunTurn(context.Background(), "chat-1", "go")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, maxInFlight)
}

// trackingClient marks entry and exit of each turn via CreateRun and
// LatestAssistantMessage.
type trackingClient struct {
	enter func()
	exit  func()
}

func (c *trackingClient) CreateThread(ctx context.Context) (string, error) { return "thread-1", nil }
func (c *trackingClient) AddUserMessage(ctx context.Context, threadID, text string) error {
	return nil
}

func (c *trackingClient) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	c.enter()
	time.Sleep(2 * time.Millisecond)
	return &Run{ID: "run-1", Status: StatusCompleted}, nil
}

func (c *trackingClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	return &Run{ID: "run-1", Status: StatusCompleted}, nil
}

func (c *trackingClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	return nil
}

func (c *trackingClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	c.exit()
	return "ok", nil
}
