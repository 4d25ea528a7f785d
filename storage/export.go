package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", " ", "-",
		"\n", "-", "\r", "-",
	)
	name = replacer.Replace(name)

	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}

	if name == "" {
		name = "chat"
	}

	return name
}

// GenerateExportPath generates a default export path for a chat in the
// user's Downloads directory.
func GenerateExportPath(title, format string) string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE") // Windows fallback
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("horizon-chat-%s-%s.%s", SanitizeFilename(title), timestamp, format)

	return filepath.Join(homeDir, "Downloads", filename)
}

// Export writes chat to w in the given format.
func Export(w io.Writer, chat *Chat, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(chat)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(exportDocument(chat)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportToFile exports a chat to path, creating parent directories.
func ExportToFile(chat *Chat, path, format string) error {
	// 0700 - user-only access
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 0600 - exports contain conversation history
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}

	if err := Export(f, chat, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to export chat: %w", err)
	}
	return f.Close()
}

type exportMessage struct {
	Role      string    `yaml:"role"`
	Content   string    `yaml:"content,omitempty"`
	Tool      string    `yaml:"tool,omitempty"`
	CallID    string    `yaml:"callId,omitempty"`
	Args      any       `yaml:"args,omitempty"`
	Result    any       `yaml:"result,omitempty"`
	CreatedAt time.Time `yaml:"createdAt"`
}

// exportDocument flattens raw JSON tool payloads into plain values so the
// YAML export shows them as nested maps instead of escaped strings.
func exportDocument(chat *Chat) map[string]any {
	messages := make([]exportMessage, 0, len(chat.Messages))
	for _, msg := range chat.Messages {
		if msg.IsText() {
			messages = append(messages, exportMessage{
				Role:      string(msg.Role),
				Content:   msg.Content,
				CreatedAt: msg.CreatedAt,
			})
			continue
		}
		for _, p := range msg.Parts {
			em := exportMessage{
				Role:      string(msg.Role),
				Tool:      p.ToolName,
				CallID:    p.ToolCallID,
				CreatedAt: msg.CreatedAt,
			}
			if len(p.Args) > 0 {
				_ = json.Unmarshal(p.Args, &em.Args)
			}
			if len(p.Result) > 0 {
				_ = json.Unmarshal(p.Result, &em.Result)
			}
			messages = append(messages, em)
		}
	}

	return map[string]any{
		"id":        chat.ID,
		"userId":    chat.UserID,
		"title":     chat.Title,
		"path":      chat.Path,
		"createdAt": chat.CreatedAt,
		"updatedAt": chat.UpdatedAt,
		"messages":  messages,
	}
}
