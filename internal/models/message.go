package models

import goopenai "github.com/sashabaranov/go-openai"

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the visitor.
	RoleUser Role = goopenai.ChatMessageRoleUser
	// RoleAssistant represents a message produced by the chat endpoint, including the synthetic
	// greeting that opens every transcript.
	RoleAssistant Role = goopenai.ChatMessageRoleAssistant
)

// DefaultGreeting is the assistant message every widget session starts with.
const DefaultGreeting = "Hello! 👋 I'm TechVision's AI assistant. I can help you learn about our services, " +
	"answer questions, or guide you through getting started. How can I assist you today?"

// Message is a single entry of a widget transcript. The JSON form is the one the chat endpoint
// expects in the request body.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewTranscript returns a fresh transcript holding only the greeting. An empty greeting falls back
// to DefaultGreeting.
func NewTranscript(greeting string) []Message {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return []Message{
		{
			Role:    RoleAssistant,
			Content: greeting,
		},
	}
}
