package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/techvision/chat-widget/internal/chat"
	"github.com/techvision/chat-widget/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

type message struct {
	Role   string
	IsUser bool

	// Text is set for user messages, which are shown verbatim.
	Text string
	// HTML is set for assistant messages, which are rendered from Markdown.
	HTML template.HTML
}

type transcriptData struct {
	Messages     []message
	Pending      bool
	QuickActions []string
}

type homePageData struct {
	Transcript transcriptData
}

// quickActions are offered until the visitor has sent a first message.
var quickActions = []string{
	"Tell me about your services",
	"How can I get started?",
	"What technologies do you use?",
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
}

func (m *Main) transcriptData(s chat.Snapshot) (transcriptData, error) {
	msgs := make([]message, 0, len(s.Messages))
	for i, msg := range s.Messages {
		// The placeholder is replaced by the typing indicator until its first delta arrives.
		if s.Pending && i == len(s.Messages)-1 && msg.Role == models.RoleAssistant && msg.Content == "" {
			continue
		}

		if msg.Role == models.RoleUser {
			msgs = append(msgs, message{
				Role:   string(msg.Role),
				IsUser: true,
				Text:   msg.Content,
			})
			continue
		}

		var buf bytes.Buffer
		if err := m.markdown.Convert([]byte(msg.Content), &buf); err != nil {
			return transcriptData{}, fmt.Errorf("failed to render message %d: %w", i, err)
		}
		msgs = append(msgs, message{
			Role: string(msg.Role),
			// goldmark escapes raw HTML unless html.WithUnsafe is set.
			HTML: template.HTML(buf.String()), //nolint:gosec // see above
		})
	}

	data := transcriptData{
		Messages: msgs,
		Pending:  s.Pending,
	}
	if len(s.Messages) <= 2 && !s.Pending {
		data.QuickActions = quickActions
	}
	return data, nil
}

func (m *Main) renderTranscript(s chat.Snapshot) (string, error) {
	data, err := m.transcriptData(s)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "transcript", data); err != nil {
		return "", fmt.Errorf("failed to execute transcript template: %w", err)
	}
	return sb.String(), nil
}
