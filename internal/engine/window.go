package engine

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/careai/careai-go/internal/domain"
)

// personaPrompt is the fixed system instruction heading every context window.
const personaPrompt = "You are a helpful and empathetic AI assistant for social services."

// historyLimit bounds how much persisted history enters the window. With
// the persona message and the unsaved incoming message the window never
// exceeds historyLimit+2 entries, whatever the conversation length.
const historyLimit = 10

// buildWindow assembles the ordered message list for one general
// completion call: persona, the newest historyLimit messages in
// chronological order, then the incoming user message (not yet persisted
// at this point). Tool-role history is accepted by the data model but
// never forwarded to the model.
func (e *Engine) buildWindow(ctx context.Context, conversationID, userMessage string) ([]openai.ChatCompletionMessage, error) {
	window := make([]openai.ChatCompletionMessage, 0, historyLimit+2)
	window = append(window, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: personaPrompt,
	})

	history, err := e.store.RecentMessages(ctx, conversationID, historyLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range history {
		role, ok := windowRole(m.Role)
		if !ok {
			continue
		}
		window = append(window, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	window = append(window, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})
	return window, nil
}

func windowRole(r domain.Role) (string, bool) {
	switch r {
	case domain.RoleUser:
		return openai.ChatMessageRoleUser, true
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant, true
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem, true
	default:
		return "", false
	}
}
