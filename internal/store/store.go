// ABOUTME: Store interface and data types for chowline persistence
// ABOUTME: Defines Chat, Place document structs and the Store interface for database operations

package store

import (
	"context"
	"encoding/json"
	"time"
)

// Role constants for chat messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Location is a latitude/longitude pair attached to a chat.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ChatMessage is one entry in a chat's ordered message log.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is the persisted chat document. ThreadID is the opaque handle into the
// AI service's conversation context; it is empty until the first turn runs.
type Chat struct {
	ID        string        `json:"chat_id"`
	ThreadID  string        `json:"thread_id,omitempty"`
	Location  *Location     `json:"location,omitempty"`
	PlaceIDs  []string      `json:"places"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
}

// Photo is one entry in a place's photo list. Description is filled in by the
// image batch analyzer after the photo has been processed.
type Photo struct {
	Name        string `json:"name"`
	URI         string `json:"uri,omitempty"`
	Description string `json:"description,omitempty"`
}

// Place is an externally-sourced place document cached by the store.
// Data holds the provider payload verbatim; typed columns cover the fields
// the core reads directly.
type Place struct {
	ID               string          `json:"place_id"`
	DisplayName      string          `json:"display_name,omitempty"`
	EditorialSummary string          `json:"editorial_summary,omitempty"`
	Photos           []Photo         `json:"photos,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
}

// PlaceSummary is the minimal place view used in lists.
type PlaceSummary struct {
	ID               string `json:"place_id"`
	DisplayName      string `json:"display_name,omitempty"`
	EditorialSummary string `json:"editorial_summary,omitempty"`
}

// Store defines the document-store contract consumed by the orchestrator,
// the tool handlers, and the gateway. Read operations return (nil, nil) when
// the requested document does not exist.
type Store interface {
	// Chats
	CreateChat(ctx context.Context, loc *Location) (*Chat, error)
	GetChat(ctx context.Context, chatID string) (*Chat, error)
	ListChats(ctx context.Context) ([]*Chat, error)
	SetChatThread(ctx context.Context, chatID, threadID string) error
	AppendChatMessage(ctx context.Context, chatID string, msg ChatMessage) error
	AppendChatPlaces(ctx context.Context, chatID string, placeIDs []string) error

	// Places
	SavePlaces(ctx context.Context, places []*Place) error
	GetPlace(ctx context.Context, placeID string) (*Place, error)
	SetPlacePhotos(ctx context.Context, placeID string, photos []Photo) error
	GetPlaceSummary(ctx context.Context, placeID string) (*PlaceSummary, error)

	Close() error
}
