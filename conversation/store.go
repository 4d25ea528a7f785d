// Package conversation holds the append-only message log of each chat.
//
// Every chat has exactly one writer at a time: Store.Acquire hands out a
// Handle holding the chat's writer lease, and only a Handle can append.
// Readers take deep-copied snapshots at any time, including mid-turn.
// Commit pushes the current snapshot through the persistence boundary when
// the caller is authenticated and silently skips otherwise.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"horizon/auth"
	"horizon/metrics"
	"horizon/model"
	"horizon/storage"
)

var (
	// ErrChatMismatch is returned when a chat belongs to a different user
	// than the current session.
	ErrChatMismatch = errors.New("chat belongs to another user")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("conversation handle released")
	// ErrInvalidMessage is returned when an appended message has no valid role.
	ErrInvalidMessage = errors.New("invalid message")
)

// Conversation is a snapshot of one chat's log.
type Conversation struct {
	ChatID    string
	UserID    string
	CreatedAt time.Time
	Messages  []model.Message
}

// Clone returns a deep copy.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]model.Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

type entry struct {
	// lease has capacity one; holding its slot is the writer lease.
	lease chan struct{}
	// refs counts holders and waiters of the lease. Guarded by Store.mu.
	refs int

	mu      sync.RWMutex
	conv    Conversation
	loaded  bool
	deleted bool
}

func newEntry(chatID string) *entry {
	return &entry{
		lease: make(chan struct{}, 1),
		conv:  Conversation{ChatID: chatID, CreatedAt: time.Now()},
	}
}

// reset empties the entry so the next writer starts from persistence.
func (e *entry) reset() {
	e.conv = Conversation{ChatID: e.conv.ChatID, CreatedAt: time.Now()}
	e.loaded = false
	e.deleted = false
}

// worthKeeping reports whether an idle entry holds state beyond what a fresh
// Acquire would rebuild.
func (e *entry) worthKeeping() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded && !e.deleted && len(e.conv.Messages) > 0
}

// DefaultIdleChats bounds how many chats without a writer stay in memory.
const DefaultIdleChats = 1024

// Store owns the in-memory logs of all active chats. Chats with a writer or
// waiters are pinned; idle chats live in a bounded LRU and the least recently
// used are evicted. Evicted authenticated chats resume from persistence on
// the next Acquire; evicted anonymous chats are gone.
type Store struct {
	persist storage.ChatStore
	auth    auth.Provider

	mu     sync.Mutex
	active map[string]*entry
	idle   *lru.Cache[string, *entry]
}

// NewStore creates a store keeping up to DefaultIdleChats idle chats. persist
// may be nil, in which case Commit is a no-op.
func NewStore(persist storage.ChatStore, authProvider auth.Provider) *Store {
	return NewStoreSize(persist, authProvider, DefaultIdleChats)
}

// NewStoreSize is NewStore with an explicit idle chat limit.
func NewStoreSize(persist storage.ChatStore, authProvider auth.Provider, idleChats int) *Store {
	if authProvider == nil {
		authProvider = auth.Static{}
	}
	if idleChats <= 0 {
		idleChats = DefaultIdleChats
	}
	idle, err := lru.New[string, *entry](idleChats)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Store{
		persist: persist,
		auth:    authProvider,
		active:  make(map[string]*entry),
		idle:    idle,
	}
}

// checkout pins the entry for chatID, creating it when needed.
func (s *Store) checkout(chatID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.active[chatID]
	if !ok {
		if e, ok = s.idle.Peek(chatID); ok {
			s.idle.Remove(chatID)
		} else {
			e = newEntry(chatID)
		}
		s.active[chatID] = e
	}
	e.refs++
	metrics.ChatsInMemory.Set(float64(len(s.active) + s.idle.Len()))
	return e
}

// checkin unpins an entry. The last one out moves it to the idle cache, or
// drops it when it holds nothing worth keeping.
func (s *Store) checkin(chatID string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.refs--
	if e.refs > 0 {
		return
	}
	delete(s.active, chatID)
	if e.worthKeeping() {
		s.idle.Add(chatID, e)
	}
	metrics.ChatsInMemory.Set(float64(len(s.active) + s.idle.Len()))
}

// Len returns the number of chats held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active) + s.idle.Len()
}

// Acquire takes the writer lease for chatID, blocking while another handle
// holds it. A chat not yet in memory is looked up in persistence first, so a
// saved chat is resumed by its owner and refused to everyone else. The caller
// must Release the handle.
func (s *Store) Acquire(ctx context.Context, chatID string) (*Handle, error) {
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}

	e := s.checkout(chatID)

	select {
	case e.lease <- struct{}{}:
	case <-ctx.Done():
		s.checkin(chatID, e)
		return nil, ctx.Err()
	}

	h := &Handle{store: s, entry: e, chatID: chatID}
	if err := s.prepare(ctx, e); err != nil {
		h.Release()
		return nil, err
	}
	return h, nil
}

// prepare loads a persisted chat on first use and checks ownership. It runs
// under the writer lease.
func (s *Store) prepare(ctx context.Context, e *entry) error {
	session, authenticated := s.auth.CurrentSession(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		e.reset()
	}

	fresh := !e.loaded
	if fresh {
		if s.persist != nil {
			chat, err := s.persist.GetChat(ctx, e.conv.ChatID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
			case err != nil:
				return fmt.Errorf("failed to resume chat %s: %w", e.conv.ChatID, err)
			default:
				e.conv = conversationFromChat(chat)
			}
		}
		e.loaded = true
	}

	if err := checkOwner(e.conv, session, authenticated); err != nil {
		if fresh {
			// don't keep someone else's chat around for a refused caller
			e.reset()
		}
		return err
	}
	return nil
}

func checkOwner(conv Conversation, session auth.Session, authenticated bool) error {
	if conv.UserID == "" {
		return nil
	}
	if !authenticated || session.UserID != conv.UserID {
		return ErrChatMismatch
	}
	return nil
}

// Snapshot returns a deep copy of an in-memory chat without taking the
// writer lease.
func (s *Store) Snapshot(chatID string) (Conversation, bool) {
	s.mu.Lock()
	e, ok := s.active[chatID]
	if !ok {
		e, ok = s.idle.Peek(chatID)
	}
	s.mu.Unlock()
	if !ok {
		return Conversation{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.deleted {
		return Conversation{}, false
	}
	return e.conv.Clone(), true
}

// Load returns the chat for the current session: the in-memory log when the
// chat is active, otherwise the persisted copy. It returns storage.ErrNotFound
// when neither exists and ErrChatMismatch when the chat belongs to someone else.
func (s *Store) Load(ctx context.Context, chatID string) (Conversation, error) {
	session, authenticated := s.auth.CurrentSession(ctx)

	if conv, ok := s.Snapshot(chatID); ok && (len(conv.Messages) > 0 || conv.UserID != "") {
		if conv.UserID == "" {
			// an ownerless log in memory must not shadow a saved owner
			if err := s.checkPersistedOwner(ctx, chatID, session, authenticated); err != nil {
				return Conversation{}, err
			}
		}
		if err := checkOwner(conv, session, authenticated); err != nil {
			return Conversation{}, err
		}
		return conv, nil
	}

	if !authenticated || s.persist == nil {
		return Conversation{}, fmt.Errorf("%w: %s", storage.ErrNotFound, chatID)
	}

	chat, err := s.persist.GetChat(ctx, chatID)
	if err != nil {
		return Conversation{}, err
	}
	conv := conversationFromChat(chat)
	if err := checkOwner(conv, session, authenticated); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *Store) checkPersistedOwner(ctx context.Context, chatID string, session auth.Session, authenticated bool) error {
	if s.persist == nil {
		return nil
	}
	chat, err := s.persist.GetChat(ctx, chatID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return checkOwner(conversationFromChat(chat), session, authenticated)
}

// Delete removes a chat from memory and persistence. It takes the writer
// lease, so a turn in flight finishes and commits before the chat goes away
// and nothing re-saves it afterwards. It returns storage.ErrNotFound when the
// chat exists in neither place.
func (s *Store) Delete(ctx context.Context, chatID string) error {
	h, err := s.Acquire(ctx, chatID)
	if err != nil {
		return err
	}
	defer h.Release()

	conv := h.CurrentState()
	inMemory := len(conv.Messages) > 0

	// persisted chats always carry their owner
	if s.persist != nil && conv.UserID != "" {
		err := s.persist.DeleteChat(ctx, chatID)
		if err != nil && !(errors.Is(err, storage.ErrNotFound) && inMemory) {
			return err
		}
	} else if !inMemory {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, chatID)
	}

	h.entry.mu.Lock()
	h.entry.deleted = true
	h.entry.conv.Messages = nil
	h.entry.mu.Unlock()

	log.WithField("chat_id", chatID).Debug("deleted chat")
	return nil
}

func conversationFromChat(chat *storage.Chat) Conversation {
	return Conversation{
		ChatID:    chat.ID,
		UserID:    chat.UserID,
		CreatedAt: chat.CreatedAt,
		Messages:  chat.Messages,
	}
}
