package ui

import (
	"horizon/dispatch"
	"horizon/display"
	"horizon/storage"
)

// turnEventMsg carries one dispatcher event from the turn goroutine.
type turnEventMsg struct {
	Event dispatch.Event
}

// turnDoneMsg ends a turn. Err is nil on success.
type turnDoneMsg struct {
	Descriptor display.Descriptor
	Err        error
}

type markdownRenderedMsg struct {
	ID       string
	Width    int
	Rendered string
}

type chatsListedMsg struct {
	Chats []storage.ChatSummary
	Err   error
}

type chatResumedMsg struct {
	ChatID string
	Err    error
}

type clipboardMsg struct {
	Err error
}
