package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataDir, "horizon.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chats_user ON chats(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS inquiries (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		property_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		submitted_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_inquiries_chat ON inquiries(chat_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	if err := s.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	return nil
}

// migrateSchema adds columns introduced after the first release.
func (s *SQLiteStore) migrateSchema() error {
	hasPath, err := s.columnExists("chats", "path")
	if err != nil {
		return fmt.Errorf("failed to check for path column: %w", err)
	}

	if !hasPath {
		if _, err := s.db.Exec(`ALTER TABLE chats ADD COLUMN path TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add path column: %w", err)
		}
		if _, err := s.db.Exec(`UPDATE chats SET path = '/chat/' || id WHERE path = ''`); err != nil {
			return fmt.Errorf("failed to backfill path column: %w", err)
		}
	}

	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (s *SQLiteStore) columnExists(tableName, columnName string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}

	return false, rows.Err()
}

func (s *SQLiteStore) SaveChat(ctx context.Context, chat *Chat) error {
	stamp(chat, time.Now().UTC())

	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
	INSERT INTO chats (id, user_id, title, path, messages, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		user_id = excluded.user_id,
		title = excluded.title,
		path = excluded.path,
		messages = excluded.messages,
		updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.Path,
		string(messages),
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chat.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	query := `
	SELECT id, user_id, title, path, messages, created_at, updated_at
	FROM chats
	WHERE id = ?
	`

	var (
		chat     Chat
		messages string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Path,
		&messages,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messages), &chat.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages of chat %s: %w", id, err)
	}

	return &chat, nil
}

func (s *SQLiteStore) ListChats(ctx context.Context, userID string) ([]ChatSummary, error) {
	query := `
	SELECT id, user_id, title, path, messages, created_at, updated_at
	FROM chats
	WHERE (? = '' OR user_id = ?)
	ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatSummary
	for rows.Next() {
		var (
			chat     Chat
			messages string
		)
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Path, &messages, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(messages), &chat.Messages); err != nil {
			continue // Skip corrupted rows
		}
		chats = append(chats, summarize(&chat))
	}

	return chats, rows.Err()
}

func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) RecordInquiry(ctx context.Context, inquiry Inquiry) error {
	query := `
	INSERT OR REPLACE INTO inquiries (id, chat_id, property_id, user_id, submitted_at)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		inquiry.ID,
		inquiry.ChatID,
		inquiry.PropertyID,
		inquiry.UserID,
		inquiry.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record inquiry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListInquiries(ctx context.Context, chatID string) ([]Inquiry, error) {
	query := `
	SELECT id, chat_id, property_id, user_id, submitted_at
	FROM inquiries
	WHERE chat_id = ?
	ORDER BY submitted_at
	`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inquiries: %w", err)
	}
	defer rows.Close()

	var inquiries []Inquiry
	for rows.Next() {
		var inq Inquiry
		if err := rows.Scan(&inq.ID, &inq.ChatID, &inq.PropertyID, &inq.UserID, &inq.SubmittedAt); err != nil {
			return nil, err
		}
		inquiries = append(inquiries, inq)
	}

	return inquiries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
