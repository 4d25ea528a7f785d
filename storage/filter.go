package storage

import (
	"github.com/sahilm/fuzzy"
)

// FilterChats fuzzy-matches query against chat titles, best match first.
// An empty query returns chats unchanged.
func FilterChats(chats []ChatSummary, query string) []ChatSummary {
	if query == "" {
		return chats
	}

	targets := make([]string, len(chats))
	for i, c := range chats {
		targets[i] = c.Title
	}

	matches := fuzzy.Find(query, targets)
	filtered := make([]ChatSummary, len(matches))
	for i, match := range matches {
		filtered[i] = chats[match.Index]
	}
	return filtered
}
