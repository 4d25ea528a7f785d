package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"horizon/model"

	"gopkg.in/yaml.v3"
)

func backends(t *testing.T) map[string]ChatStore {
	t.Helper()
	stores := map[string]ChatStore{}
	for _, backend := range []string{BackendSQLite, BackendJSON} {
		store, err := Open(backend, t.TempDir())
		if err != nil {
			t.Fatalf("Open(%s) error: %v", backend, err)
		}
		t.Cleanup(func() { store.Close() })
		stores[backend] = store
	}
	return stores
}

func sampleChat(id, userID string) *Chat {
	return &Chat{
		ID:     id,
		UserID: userID,
		Messages: []model.Message{
			model.NewTextMessage(model.RoleUser, "Show me trending properties in the city center"),
			model.NewToolCallMessage("listTrendingProperties", "call-1", json.RawMessage(`{"properties":[{"id":"P7","price":1,"description":"x"}]}`)),
			model.NewToolResultMessage("listTrendingProperties", "call-1", json.RawMessage(`[{"id":"P7","price":1,"description":"x"}]`)),
			model.NewTextMessage(model.RoleSystem, "internal note about P7"),
		},
	}
}

func TestSaveAndGetChat(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			chat := sampleChat("c1", "U1")
			if err := store.SaveChat(ctx, chat); err != nil {
				t.Fatalf("SaveChat() error: %v", err)
			}

			got, err := store.GetChat(ctx, "c1")
			if err != nil {
				t.Fatalf("GetChat() error: %v", err)
			}
			if got.UserID != "U1" || got.Path != "/chat/c1" {
				t.Errorf("unexpected chat header %+v", got)
			}
			if got.Title != "Show me trending properties in the city center" {
				t.Errorf("title = %q", got.Title)
			}
			if len(got.Messages) != 4 {
				t.Fatalf("got %d messages, want 4", len(got.Messages))
			}
			part := got.Messages[2].Parts[0]
			if part.Type != model.PartToolResult || part.ToolCallID != "call-1" {
				t.Errorf("tool result part not preserved: %+v", part)
			}
		})
	}
}

func TestSaveChatLastWriteWins(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := sampleChat("c1", "U1")
			if err := store.SaveChat(ctx, first); err != nil {
				t.Fatal(err)
			}
			created := first.CreatedAt

			second := sampleChat("c1", "U1")
			second.Messages = append(second.Messages, model.NewTextMessage(model.RoleAssistant, "Here you go"))
			if err := store.SaveChat(ctx, second); err != nil {
				t.Fatal(err)
			}

			got, err := store.GetChat(ctx, "c1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Messages) != 5 {
				t.Errorf("got %d messages, want 5", len(got.Messages))
			}
			if d := got.CreatedAt.Sub(created); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("created_at changed: %v -> %v", created, got.CreatedAt)
			}

			list, err := store.ListChats(ctx, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 1 {
				t.Errorf("upsert produced %d chats", len(list))
			}
		})
	}
}

func TestGetChatNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetChat(ctx, "missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if err := store.DeleteChat(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("DeleteChat: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListChatsFiltersByUser(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, c := range []*Chat{sampleChat("a", "U1"), sampleChat("b", "U2"), sampleChat("c", "U1")} {
				if err := store.SaveChat(ctx, c); err != nil {
					t.Fatal(err)
				}
				time.Sleep(2 * time.Millisecond)
			}

			list, err := store.ListChats(ctx, "U1")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 2 {
				t.Fatalf("got %d chats for U1, want 2", len(list))
			}
			if list[0].ID != "c" || list[1].ID != "a" {
				t.Errorf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
			}
			if list[0].MessageCount != 4 {
				t.Errorf("message count = %d", list[0].MessageCount)
			}

			if err := store.DeleteChat(ctx, "a"); err != nil {
				t.Fatal(err)
			}
			all, _ := store.ListChats(ctx, "")
			if len(all) != 2 {
				t.Errorf("got %d chats after delete, want 2", len(all))
			}
		})
	}
}

func TestRecordInquiry(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			inq := Inquiry{ID: "i1", ChatID: "c1", PropertyID: "P1", UserID: "U1", SubmittedAt: time.Now().UTC()}
			if err := store.RecordInquiry(ctx, inq); err != nil {
				t.Fatalf("RecordInquiry() error: %v", err)
			}
			if err := store.RecordInquiry(ctx, Inquiry{ID: "i2", ChatID: "other", PropertyID: "P2", UserID: "U1", SubmittedAt: time.Now().UTC()}); err != nil {
				t.Fatal(err)
			}

			got, err := store.ListInquiries(ctx, "c1")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0].PropertyID != "P1" || got[0].UserID != "U1" {
				t.Errorf("unexpected inquiries %+v", got)
			}
		})
	}
}

func TestJSONStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveChat(context.Background(), &Chat{ID: "../escape"}); err == nil {
		t.Error("expected error for traversal id")
	}
}

func TestSearchMessages(t *testing.T) {
	ctx := context.Background()
	store, err := Open(BackendSQLite, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveChat(ctx, sampleChat("c1", "U1")); err != nil {
		t.Fatal(err)
	}

	matches, err := SearchMessages(ctx, store, "U1", "p7")
	if err != nil {
		t.Fatal(err)
	}
	// the tool result mentions P7; the system note is skipped; the tool call
	// carries no result text
	if len(matches) != 1 || matches[0].MessageIndex != 2 || matches[0].Role != model.RoleTool {
		t.Errorf("unexpected matches %+v", matches)
	}

	if got, _ := SearchMessages(ctx, store, "U1", ""); got != nil {
		t.Errorf("empty query should return nil, got %v", got)
	}
}

func TestChatTitle(t *testing.T) {
	long := strings.Repeat("é", 150)
	msgs := []model.Message{model.NewTextMessage(model.RoleUser, long)}
	if got := ChatTitle(msgs); len([]rune(got)) != 100 {
		t.Errorf("title has %d runes, want 100", len([]rune(got)))
	}
	if got := ChatTitle(nil); got != "" {
		t.Errorf("ChatTitle(nil) = %q", got)
	}
}

func TestFilterChats(t *testing.T) {
	chats := []ChatSummary{
		{ID: "1", Title: "Trending lofts downtown"},
		{ID: "2", Title: "Mortgage news June"},
		{ID: "3", Title: "Inquiry for P1"},
	}

	if got := FilterChats(chats, ""); len(got) != 3 {
		t.Errorf("empty query should keep all chats, got %d", len(got))
	}

	got := FilterChats(chats, "mrtg")
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("unexpected fuzzy result %+v", got)
	}
}

func TestExport(t *testing.T) {
	chat := sampleChat("c1", "U1")
	stamp(chat, time.Now())

	var buf bytes.Buffer
	if err := Export(&buf, chat, FormatJSON); err != nil {
		t.Fatal(err)
	}
	var decoded Chat
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON export is not valid: %v", err)
	}
	if decoded.ID != "c1" || len(decoded.Messages) != 4 {
		t.Errorf("unexpected JSON export %+v", decoded)
	}

	buf.Reset()
	if err := Export(&buf, chat, FormatYAML); err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("YAML export is not valid: %v", err)
	}
	msgs, ok := doc["messages"].([]any)
	if !ok || len(msgs) != 4 {
		t.Fatalf("unexpected YAML messages %v", doc["messages"])
	}
	result := msgs[2].(map[string]any)["result"].([]any)
	if result[0].(map[string]any)["id"] != "P7" {
		t.Errorf("tool result not expanded in YAML: %v", msgs[2])
	}

	if err := Export(&buf, chat, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Trending: lofts/downtown": "Trending--lofts-downtown",
		"..":                       "chat",
		"":                         "chat",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
