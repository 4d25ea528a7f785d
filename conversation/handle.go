package conversation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"horizon/model"
	"horizon/storage"

	log "github.com/sirupsen/logrus"
)

// Handle is the single writer of one chat. It is not safe to share a handle
// between goroutines that append concurrently; the lease guarantees nobody
// else appends.
type Handle struct {
	store  *Store
	entry  *entry
	chatID string

	releaseOnce sync.Once
	released    atomic.Bool
}

// ChatID returns the id of the chat this handle writes.
func (h *Handle) ChatID() string {
	return h.chatID
}

// Append adds msgs to the end of the log in one step: readers see either none
// or all of them. Messages without an ID or timestamp get one.
func (h *Handle) Append(msgs ...model.Message) error {
	if h.released.Load() {
		return ErrReleased
	}
	if len(msgs) == 0 {
		return nil
	}

	batch := make([]model.Message, len(msgs))
	now := time.Now()
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
		}
		m = m.Clone()
		if m.ID == "" {
			m.ID = model.NewID()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		batch[i] = m
	}

	h.entry.mu.Lock()
	h.entry.conv.Messages = append(h.entry.conv.Messages, batch...)
	h.entry.mu.Unlock()
	return nil
}

// CurrentState returns a deep copy of the log.
func (h *Handle) CurrentState() Conversation {
	h.entry.mu.RLock()
	defer h.entry.mu.RUnlock()
	return h.entry.conv.Clone()
}

// Len returns the number of messages in the log.
func (h *Handle) Len() int {
	h.entry.mu.RLock()
	defer h.entry.mu.RUnlock()
	return len(h.entry.conv.Messages)
}

// Commit persists the current snapshot. Unauthenticated sessions are skipped
// silently. A save failure is logged and returned but never alters the log.
// Commit is idempotent; the persistence boundary keeps the last write.
func (h *Handle) Commit(ctx context.Context) error {
	if h.released.Load() {
		return ErrReleased
	}

	s := h.store
	session, ok := s.auth.CurrentSession(ctx)
	if !ok || s.persist == nil {
		log.WithField("chat_id", h.ChatID()).Debug("skipping persistence for unauthenticated session")
		return nil
	}

	h.entry.mu.Lock()
	if h.entry.deleted {
		h.entry.mu.Unlock()
		return nil
	}
	if h.entry.conv.UserID == "" {
		h.entry.conv.UserID = session.UserID
	}
	conv := h.entry.conv.Clone()
	h.entry.mu.Unlock()

	chat := &storage.Chat{
		ID:        conv.ChatID,
		UserID:    conv.UserID,
		Title:     storage.ChatTitle(conv.Messages),
		Path:      storage.ChatPath(conv.ChatID),
		CreatedAt: conv.CreatedAt,
		Messages:  conv.Messages,
	}

	if err := s.persist.SaveChat(ctx, chat); err != nil {
		log.WithError(err).WithField("chat_id", conv.ChatID).Warn("failed to persist chat")
		return fmt.Errorf("failed to commit chat %s: %w", conv.ChatID, err)
	}

	log.WithFields(log.Fields{
		"chat_id":  conv.ChatID,
		"messages": len(conv.Messages),
	}).Debug("committed chat")
	return nil
}

// Release gives up the writer lease. It is safe to call more than once.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		h.released.Store(true)
		<-h.entry.lease
		h.store.checkin(h.chatID, h.entry)
	})
}
