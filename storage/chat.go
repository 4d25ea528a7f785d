package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"horizon/model"
)

// ErrNotFound is returned when a chat does not exist.
var ErrNotFound = errors.New("chat not found")

// Chat is the persisted record of one conversation.
type Chat struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Title     string          `json:"title"`
	Path      string          `json:"path"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []model.Message `json:"messages"`
}

// ChatSummary is a lightweight version of Chat for listing
type ChatSummary struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Title        string    `json:"title"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Inquiry records a submitted property inquiry.
type Inquiry struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	PropertyID  string    `json:"propertyId"`
	UserID      string    `json:"userId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ChatStore is the persistence boundary for conversations.
//
// SaveChat is an upsert: the last write for a chat id wins. CreatedAt of an
// existing chat is preserved.
type ChatStore interface {
	SaveChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id string) (*Chat, error)
	// ListChats returns summaries newest first. An empty userID lists all chats.
	ListChats(ctx context.Context, userID string) ([]ChatSummary, error)
	DeleteChat(ctx context.Context, id string) error
	RecordInquiry(ctx context.Context, inquiry Inquiry) error
	ListInquiries(ctx context.Context, chatID string) ([]Inquiry, error)
	Close() error
}

const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Open creates the chat store for the named backend under dataDir.
func Open(backend, dataDir string) (ChatStore, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(dataDir)
	case BackendJSON:
		return NewJSONStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", backend)
	}
}

const titleLimit = 100

// ChatTitle derives a chat title from the first message's text, truncated
// to 100 characters.
func ChatTitle(messages []model.Message) string {
	for _, msg := range messages {
		if !msg.IsText() {
			continue
		}
		title := strings.TrimSpace(strings.ReplaceAll(msg.Content, "\n", " "))
		runes := []rune(title)
		if len(runes) > titleLimit {
			title = string(runes[:titleLimit])
		}
		return title
	}
	return ""
}

// ChatPath is the client route for a chat.
func ChatPath(id string) string {
	return "/chat/" + id
}

func summarize(c *Chat) ChatSummary {
	return ChatSummary{
		ID:           c.ID,
		UserID:       c.UserID,
		Title:        c.Title,
		Path:         c.Path,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: len(c.Messages),
	}
}

// stamp fills the bookkeeping fields of a chat about to be saved.
func stamp(c *Chat, now time.Time) {
	c.UpdatedAt = now
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.Title == "" {
		c.Title = ChatTitle(c.Messages)
	}
	if c.Path == "" {
		c.Path = ChatPath(c.ID)
	}
}
