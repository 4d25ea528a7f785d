package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// JSONStore keeps one JSON file per chat under <dataDir>/chats and appends
// inquiries to <dataDir>/inquiries.json.
type JSONStore struct {
	mu       sync.Mutex
	chatsDir string
	dataDir  string
}

func NewJSONStore(dataDir string) (*JSONStore, error) {
	chatsDir := filepath.Join(dataDir, "chats")

	// 0700 - user-only access
	if err := os.MkdirAll(chatsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chats directory: %w", err)
	}

	return &JSONStore{chatsDir: chatsDir, dataDir: dataDir}, nil
}

func (s *JSONStore) chatPath(id string) (string, error) {
	if id == "" || filepath.Base(id) != id || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid chat id %q", id)
	}
	return filepath.Join(s.chatsDir, id+".json"), nil
}

func (s *JSONStore) SaveChat(ctx context.Context, chat *Chat) error {
	path, err := s.chatPath(chat.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.readChat(path); err == nil {
		chat.CreatedAt = existing.CreatedAt
	}
	stamp(chat, time.Now().UTC())

	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	// 0600 - chat files contain conversation history
	return writeFileAtomic(path, data, 0600)
}

func (s *JSONStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	path, err := s.chatPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, err := s.readChat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return chat, err
}

func (s *JSONStore) readChat(path string) (*Chat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var chat Chat
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat: %w", err)
	}
	return &chat, nil
}

func (s *JSONStore) ListChats(ctx context.Context, userID string) ([]ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.chatsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read chats directory: %w", err)
	}

	var chats []ChatSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		chat, err := s.readChat(filepath.Join(s.chatsDir, entry.Name()))
		if err != nil {
			continue // Skip corrupted files
		}
		if userID != "" && chat.UserID != userID {
			continue
		}
		chats = append(chats, summarize(chat))
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})

	return chats, nil
}

func (s *JSONStore) DeleteChat(ctx context.Context, id string) error {
	path, err := s.chatPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete chat file: %w", err)
	}
	return nil
}

func (s *JSONStore) inquiriesPath() string {
	return filepath.Join(s.dataDir, "inquiries.json")
}

func (s *JSONStore) readInquiries() ([]Inquiry, error) {
	data, err := os.ReadFile(s.inquiriesPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var inquiries []Inquiry
	if err := json.Unmarshal(data, &inquiries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inquiries: %w", err)
	}
	return inquiries, nil
}

func (s *JSONStore) RecordInquiry(ctx context.Context, inquiry Inquiry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inquiries, err := s.readInquiries()
	if err != nil {
		return fmt.Errorf("failed to record inquiry: %w", err)
	}
	inquiries = append(inquiries, inquiry)

	data, err := json.MarshalIndent(inquiries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal inquiries: %w", err)
	}
	return writeFileAtomic(s.inquiriesPath(), data, 0600)
}

func (s *JSONStore) ListInquiries(ctx context.Context, chatID string) ([]Inquiry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readInquiries()
	if err != nil {
		return nil, err
	}

	var out []Inquiry
	for _, inq := range all {
		if inq.ChatID == chatID {
			out = append(out, inq)
		}
	}
	return out, nil
}

func (s *JSONStore) Close() error {
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path so readers never observe a half-written file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
