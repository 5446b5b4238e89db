// ABOUTME: Event handlers for the client protocol: send_message, get_chats, get_messages, get_chat_data.
// ABOUTME: Handler failures surface as error events to the offending connection, never as dropped connections.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/chowline/internal/session"
	"github.com/2389/chowline/internal/store"
)

func (g *Gateway) dispatch(ctx context.Context, connID string, f frame) {
	switch f.Event {
	case "send_message":
		g.handleSendMessage(ctx, connID, f.Data)
	case "get_chats":
		g.handleGetChats(ctx, connID)
	case "get_messages":
		g.handleGetMessages(ctx, connID, f.Data)
	case "get_chat_data":
		g.handleGetChatData(ctx, connID, f.Data)
	default:
		g.logger.Warn("unknown event", "conn_id", connID, "event", f.Event)
		g.broadcaster.EmitError(connID, fmt.Sprintf("unknown event: %s", f.Event))
	}
}

type sendMessageData struct {
	ChatID   string          `json:"chat_id"`
	Content  string          `json:"content"`
	Location *store.Location `json:"location"`
}

// handleSendMessage runs one conversation turn. A missing chat id starts a
// new chat seeded with the sender's location; the sender joins the chat
// before the turn so tool and error events reach them while it runs.
func (g *Gateway) handleSendMessage(ctx context.Context, connID string, data json.RawMessage) {
	var msg sendMessageData
	if err := json.Unmarshal(data, &msg); err != nil {
		g.broadcaster.EmitError(connID, "malformed send_message data")
		return
	}
	if msg.Content == "" {
		g.broadcaster.EmitError(connID, "Message content is required")
		return
	}

	chatID := msg.ChatID
	if chatID == "" {
		chat, err := g.store.CreateChat(ctx, msg.Location)
		if err != nil {
			g.logger.Error("chat creation failed", "conn_id", connID, "error", err)
			g.broadcaster.EmitError(connID, err.Error())
			return
		}
		chatID = chat.ID
		g.logger.Info("created chat", "conn_id", connID, "chat_id", chatID)
	}

	g.registry.JoinChat(connID, chatID)

	// The turn belongs to the chat, not the sender: a disconnect mid-turn
	// must not cancel the run or record a cancellation error as the
	// assistant's reply for the remaining members.
	reply := g.runner.RunTurn(context.WithoutCancel(ctx), chatID, msg.Content)

	g.broadcaster.EmitToChat(chatID, session.EventMessage, map[string]any{
		"chat_id": chatID,
		"content": reply,
	})
}

func (g *Gateway) handleGetChats(ctx context.Context, connID string) {
	chats, err := g.store.ListChats(ctx)
	if err != nil {
		g.logger.Error("listing chats failed", "conn_id", connID, "error", err)
		g.broadcaster.EmitError(connID, err.Error())
		return
	}
	if chats == nil {
		chats = []*store.Chat{}
	}
	g.broadcaster.EmitToConnection(connID, session.EventChats, map[string]any{
		"chats": chats,
	})
}

type chatRequestData struct {
	ChatID string `json:"chat_id"`
}

func (g *Gateway) handleGetMessages(ctx context.Context, connID string, data json.RawMessage) {
	chat, ok := g.loadChat(ctx, connID, data)
	if !ok {
		return
	}
	messages := chat.Messages
	if messages == nil {
		messages = []store.ChatMessage{}
	}
	g.broadcaster.EmitToConnection(connID, session.EventMessages, map[string]any{
		"chat_id":  chat.ID,
		"messages": messages,
	})
}

func (g *Gateway) handleGetChatData(ctx context.Context, connID string, data json.RawMessage) {
	chat, ok := g.loadChat(ctx, connID, data)
	if !ok {
		return
	}
	g.broadcaster.EmitToConnection(connID, session.EventChatData, map[string]any{
		"chat_id":   chat.ID,
		"chat_data": chat,
	})
}

// loadChat resolves the chat_id in a request payload, emitting an error
// event on the connection when the request is malformed or the chat is
// unknown.
func (g *Gateway) loadChat(ctx context.Context, connID string, data json.RawMessage) (*store.Chat, bool) {
	var req chatRequestData
	if err := json.Unmarshal(data, &req); err != nil || req.ChatID == "" {
		g.broadcaster.EmitError(connID, "chat_id is required")
		return nil, false
	}

	chat, err := g.store.GetChat(ctx, req.ChatID)
	if err != nil {
		g.logger.Error("loading chat failed", "conn_id", connID, "chat_id", req.ChatID, "error", err)
		g.broadcaster.EmitError(connID, err.Error())
		return nil, false
	}
	if chat == nil {
		g.broadcaster.EmitError(connID, fmt.Sprintf("Chat not found: %s", req.ChatID))
		return nil, false
	}
	return chat, true
}
