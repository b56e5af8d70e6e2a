package store

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceDocument is a shloka citation attached to an assistant answer.
type SourceDocument struct {
	ReferenceID  string `json:"reference_id"`
	SanskritText string `json:"sanskrit_text"`
	Commentary   string `json:"commentary"`
	AuthorLabel  string `json:"author_label"`
}

// Message is a single conversation entry. Messages are immutable once
// appended; the id is assigned at creation and never reused.
type Message struct {
	ID       string           `json:"id"`
	Role     Role             `json:"role"`
	Content  string           `json:"content"`
	Sources  []SourceDocument `json:"sources,omitempty"`
	AudioURL string           `json:"audio_url,omitempty"`
}

// Conversation is an ordered, append-only message history.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(role Role, content string) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: content}
}

// SeedGreeting is the assistant message every new conversation opens with.
const SeedGreeting = "Greetings, seeker. I am here to share the timeless wisdom of the Gita. How may I guide you today?"

// DefaultTitle is assigned to conversations until the user renames them.
const DefaultTitle = "New Conversation"
