package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"horizon/conversation"
	"horizon/dispatch"
	"horizon/display"
	"horizon/storage"
)

type turnFunc func(ctx context.Context, h *conversation.Handle, observe dispatch.Observer) (display.Descriptor, error)

// startTurn runs fn on its own goroutine under the chat's writer lease.
// Events flow to the program through a bounded channel; a full channel
// blocks the observer, and with it the stream.
func (a *AppView) startTurn(fn turnFunc) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan tea.Msg, a.opts.EventBuffer)

	a.busy = true
	a.cancel = cancel
	a.events = events
	a.state = dispatch.AwaitingModelResponse

	store := a.opts.Store
	chatID := a.chatID

	go func() {
		defer close(events)

		h, err := store.Acquire(ctx, chatID)
		if err != nil {
			events <- turnDoneMsg{Err: err}
			return
		}
		defer h.Release()

		desc, err := fn(ctx, h, func(e dispatch.Event) {
			events <- turnEventMsg{Event: e}
		})
		events <- turnDoneMsg{Descriptor: desc, Err: err}
	}()

	return tea.Batch(a.spinner.Tick, waitForTurn(events))
}

// waitForTurn delivers the next message of a running turn.
func waitForTurn(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func listChatsCmd(persist storage.ChatStore, userID string) tea.Cmd {
	return func() tea.Msg {
		chats, err := persist.ListChats(context.Background(), userID)
		return chatsListedMsg{Chats: chats, Err: err}
	}
}

// resumeChatCmd loads a persisted chat into the store. Taking the lease once
// is enough: Acquire resumes the log from persistence.
func resumeChatCmd(store *conversation.Store, chatID string) tea.Cmd {
	return func() tea.Msg {
		h, err := store.Acquire(context.Background(), chatID)
		if err != nil {
			return chatResumedMsg{ChatID: chatID, Err: err}
		}
		h.Release()
		return chatResumedMsg{ChatID: chatID}
	}
}
