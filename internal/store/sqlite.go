// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides chat/place document persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chats (
			chat_id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL DEFAULT '',
			location TEXT,
			place_ids TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chats_created_at
			ON chats(created_at);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(chat_id)
		);

		CREATE INDEX IF NOT EXISTS idx_chat_messages_chat
			ON chat_messages(chat_id, id);

		CREATE TABLE IF NOT EXISTS places (
			place_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			editorial_summary TEXT NOT NULL DEFAULT '',
			photos TEXT NOT NULL DEFAULT '[]',
			data TEXT NOT NULL DEFAULT '{}'
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateChat inserts a new chat document with a generated id.
func (s *SQLiteStore) CreateChat(ctx context.Context, loc *Location) (*Chat, error) {
	chat := &Chat{
		ID:        uuid.New().String(),
		Location:  loc,
		PlaceIDs:  []string{},
		Messages:  []ChatMessage{},
		CreatedAt: time.Now().UTC(),
	}

	var locJSON any
	if loc != nil {
		b, err := json.Marshal(loc)
		if err != nil {
			return nil, fmt.Errorf("marshaling location: %w", err)
		}
		locJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (chat_id, thread_id, location, place_ids, created_at)
		 VALUES (?, '', ?, '[]', ?)`,
		chat.ID, locJSON, chat.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting chat: %w", err)
	}

	s.logger.Info("created chat", "chat_id", chat.ID)
	return chat, nil
}

// GetChat returns the chat document with its full message log, or (nil, nil)
// if no chat exists with the given id.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	chat, err := s.scanChat(s.db.QueryRowContext(ctx,
		`SELECT chat_id, thread_id, location, place_ids, created_at
		 FROM chats WHERE chat_id = ?`, chatID))
	if err != nil || chat == nil {
		return chat, err
	}

	if err := s.loadMessages(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats returns all chat documents, newest first.
func (s *SQLiteStore) ListChats(ctx context.Context) ([]*Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, thread_id, location, place_ids, created_at
		 FROM chats ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := s.scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}

	for _, chat := range chats {
		if err := s.loadMessages(ctx, chat); err != nil {
			return nil, err
		}
	}
	return chats, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanChat.
type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanChat(row scanner) (*Chat, error) {
	var chat Chat
	var locJSON sql.NullString
	var placeIDsJSON string

	err := row.Scan(&chat.ID, &chat.ThreadID, &locJSON, &placeIDsJSON, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chat: %w", err)
	}

	if locJSON.Valid && locJSON.String != "" {
		var loc Location
		if err := json.Unmarshal([]byte(locJSON.String), &loc); err != nil {
			return nil, fmt.Errorf("unmarshaling location: %w", err)
		}
		chat.Location = &loc
	}

	if err := json.Unmarshal([]byte(placeIDsJSON), &chat.PlaceIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling place ids: %w", err)
	}
	if chat.PlaceIDs == nil {
		chat.PlaceIDs = []string{}
	}
	chat.Messages = []ChatMessage{}
	return &chat, nil
}

func (s *SQLiteStore) loadMessages(ctx context.Context, chat *Chat) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content FROM chat_messages WHERE chat_id = ? ORDER BY id`,
		chat.ID)
	if err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return fmt.Errorf("scanning message: %w", err)
		}
		chat.Messages = append(chat.Messages, msg)
	}
	return rows.Err()
}

// SetChatThread stores the AI service thread handle on the chat document.
func (s *SQLiteStore) SetChatThread(ctx context.Context, chatID, threadID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chats SET thread_id = ? WHERE chat_id = ?`, threadID, chatID)
	if err != nil {
		return fmt.Errorf("setting chat thread: %w", err)
	}
	return requireRowUpdated(res, "chat", chatID)
}

// AppendChatMessage appends one message to the chat's ordered message log.
func (s *SQLiteStore) AppendChatMessage(ctx context.Context, chatID string, msg ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (chat_id, role, content, created_at)
		 VALUES (?, ?, ?, ?)`,
		chatID, msg.Role, msg.Content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return nil
}

// AppendChatPlaces adds place ids to the chat's referenced-place list.
// Already-referenced ids are kept once.
func (s *SQLiteStore) AppendChatPlaces(ctx context.Context, chatID string, placeIDs []string) error {
	if len(placeIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT place_ids FROM chats WHERE chat_id = ?`, chatID).Scan(&existingJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("chat %s not found", chatID)
	}
	if err != nil {
		return fmt.Errorf("reading place ids: %w", err)
	}

	var existing []string
	if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
		return fmt.Errorf("unmarshaling place ids: %w", err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range placeIDs {
		if _, dup := seen[id]; !dup {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}

	updated, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshaling place ids: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET place_ids = ? WHERE chat_id = ?`, string(updated), chatID); err != nil {
		return fmt.Errorf("updating place ids: %w", err)
	}

	return tx.Commit()
}

// SavePlaces bulk-inserts place documents, keeping existing documents
// untouched so previously attached photo descriptions survive re-searches.
func (s *SQLiteStore) SavePlaces(ctx context.Context, places []*Place) error {
	if len(places) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO places (place_id, display_name, editorial_summary, photos, data)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(place_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("preparing place insert: %w", err)
	}
	defer stmt.Close()

	for _, place := range places {
		photos := place.Photos
		if photos == nil {
			photos = []Photo{}
		}
		photosJSON, err := json.Marshal(photos)
		if err != nil {
			return fmt.Errorf("marshaling photos: %w", err)
		}
		data := place.Data
		if len(data) == 0 {
			data = json.RawMessage("{}")
		}
		if _, err := stmt.ExecContext(ctx,
			place.ID, place.DisplayName, place.EditorialSummary,
			string(photosJSON), string(data)); err != nil {
			return fmt.Errorf("inserting place %s: %w", place.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing places: %w", err)
	}

	s.logger.Debug("saved places", "count", len(places))
	return nil
}

// GetPlace returns the place document, or (nil, nil) if it does not exist.
func (s *SQLiteStore) GetPlace(ctx context.Context, placeID string) (*Place, error) {
	var place Place
	var photosJSON, dataJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT place_id, display_name, editorial_summary, photos, data
		 FROM places WHERE place_id = ?`, placeID).
		Scan(&place.ID, &place.DisplayName, &place.EditorialSummary, &photosJSON, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning place: %w", err)
	}

	if err := json.Unmarshal([]byte(photosJSON), &place.Photos); err != nil {
		return nil, fmt.Errorf("unmarshaling photos: %w", err)
	}
	place.Data = json.RawMessage(dataJSON)
	return &place, nil
}

// SetPlacePhotos replaces the place's photo list.
func (s *SQLiteStore) SetPlacePhotos(ctx context.Context, placeID string, photos []Photo) error {
	if photos == nil {
		photos = []Photo{}
	}
	photosJSON, err := json.Marshal(photos)
	if err != nil {
		return fmt.Errorf("marshaling photos: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE places SET photos = ? WHERE place_id = ?`, string(photosJSON), placeID)
	if err != nil {
		return fmt.Errorf("updating place photos: %w", err)
	}
	return requireRowUpdated(res, "place", placeID)
}

// GetPlaceSummary returns the minimal place view, or (nil, nil) if absent.
func (s *SQLiteStore) GetPlaceSummary(ctx context.Context, placeID string) (*PlaceSummary, error) {
	var summary PlaceSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT place_id, display_name, editorial_summary FROM places WHERE place_id = ?`,
		placeID).
		Scan(&summary.ID, &summary.DisplayName, &summary.EditorialSummary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning place summary: %w", err)
	}
	return &summary, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRowUpdated(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
