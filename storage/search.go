package storage

import (
	"context"
	"strings"
	"time"

	"horizon/model"
)

// MessageMatch represents a search hit within a chat.
type MessageMatch struct {
	ChatID       string     `json:"chatId"`
	ChatTitle    string     `json:"chatTitle"`
	MessageIndex int        `json:"messageIndex"`
	Role         model.Role `json:"role"`
	Preview      string     `json:"preview"`
	CreatedAt    time.Time  `json:"createdAt"`
}

const previewLimit = 100

// searchableText is what a message contributes to search: its text, or the
// raw tool result for tool messages, so property ids in listings are found.
func searchableText(msg model.Message) string {
	if msg.IsText() {
		return msg.Content
	}
	var parts []string
	for _, p := range msg.Parts {
		if p.Type == model.PartToolResult {
			parts = append(parts, string(p.Result))
		}
	}
	return strings.Join(parts, " ")
}

// SearchChat finds messages in one chat containing query, case-insensitively.
// System messages are not searched.
func SearchChat(chat *Chat, query string) []MessageMatch {
	if query == "" {
		return nil
	}

	queryLower := strings.ToLower(query)
	var matches []MessageMatch

	for i, msg := range chat.Messages {
		if msg.Role == model.RoleSystem {
			continue
		}

		text := searchableText(msg)
		if !strings.Contains(strings.ToLower(text), queryLower) {
			continue
		}

		preview := text
		if runes := []rune(preview); len(runes) > previewLimit {
			preview = string(runes[:previewLimit]) + "..."
		}

		matches = append(matches, MessageMatch{
			ChatID:       chat.ID,
			ChatTitle:    chat.Title,
			MessageIndex: i,
			Role:         msg.Role,
			Preview:      preview,
			CreatedAt:    msg.CreatedAt,
		})
	}

	return matches
}

// SearchMessages searches every chat of userID (all chats when empty).
// Chats that fail to load are skipped.
func SearchMessages(ctx context.Context, store ChatStore, userID, query string) ([]MessageMatch, error) {
	if query == "" {
		return nil, nil
	}

	summaries, err := store.ListChats(ctx, userID)
	if err != nil {
		return nil, err
	}

	var matches []MessageMatch
	for _, summary := range summaries {
		chat, err := store.GetChat(ctx, summary.ID)
		if err != nil {
			continue
		}
		matches = append(matches, SearchChat(chat, query)...)
	}

	return matches, nil
}
