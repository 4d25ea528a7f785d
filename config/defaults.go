package config

import (
	"fmt"
	"time"
)

func DefaultConfig() *Config {
	return &Config{
		DataDirectory: "~/.local/share/horizon",
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-3.5-turbo",
		},
		Chat: ChatConfig{
			ToolDelay:    Duration{time.Second},
			StreamBuffer: 16,
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
		},
		Server: ServerConfig{
			Listen:        ":8080",
			MetricsListen: ":2112",
		},
	}
}

// DefaultSystemPrompt is the real estate assistant prompt. The current month
// is stamped in so the model can reason about "recent" events.
func DefaultSystemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are a real estate conversation bot and you can help users buy or rent properties, step by step. You and the user can discuss property listings, adjust filters, or place inquiries, in the UI.

Messages inside [] means that it's a UI element or a user event. For example:
  - "[Price of Property XYZ = $500,000]" means that an interface of the property price of XYZ is shown to the user.
  - "[User has changed the filter to 3 bedrooms]" means that the user has adjusted the filter to show properties with 3 bedrooms.

If the user requests to see property details, call showPropertyDetails to display the property information.
If the user wants to view trending properties, call listTrendingProperties.
If the user wants to see recent real estate news or events, call getRealEstateEvents.
If the user wants to inquire about a property, call showPropertyInquiryForm.
If you want to show general information or answer questions, you can chat with users and provide calculations if needed.
This is Year %d, Month of %s.`, now.Year(), now.Month())
}

func GenerateConfigTemplate() string {
	return `# Horizon Estates Configuration
# Location: ~/.config/horizon/config.toml
# This file uses TOML format: https://toml.io

# Directory where chats and logs are stored
data_directory = "~/.local/share/horizon"

# Local identity used by the terminal UI. Chats are only persisted
# when an identity is set.
user_id = ""

[provider]
# One of: openai, openrouter, anthropic, ollama
type = "openai"
model = "gpt-3.5-turbo"
# base_url = ""
# api_key = ""  (falls back to OPENAI_API_KEY / ANTHROPIC_API_KEY / OPENROUTER_API_KEY)

[chat]
# Leave empty to use the built-in real estate prompt
system_prompt = ""
# Simulated completion delay for tool results
tool_delay = "1s"
# Chunks buffered between the model stream and the dispatcher
stream_buffer = 16

[storage]
# sqlite or json
backend = "sqlite"

[server]
listen = ":8080"
metrics_listen = ":2112"

# Bearer token users for the HTTP API. Generate hashes with: horizon hash-token
# [[server.users]]
# id = "U1"
# token_hash = "$2a$10$..."
`
}
