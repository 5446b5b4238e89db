// ABOUTME: Package documentation for gateway
// ABOUTME: Describes the WebSocket gateway and its client protocol

// Package gateway terminates client WebSocket connections and routes their
// events.
//
// Clients connect to /ws with a token query parameter; invalid tokens are
// rejected before any session state is created. Every frame in both
// directions is a JSON object with "event" and "data" fields. Inbound
// events are send_message, get_chats, get_messages, and get_chat_data;
// outbound events are message, chats, messages, chat_data, tool_call, and
// error.
package gateway
