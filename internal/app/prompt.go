package app

import (
	"strings"

	"bookmuse/pkg/domain"
)

const personaPrompt = `You are a friendly, well-read book assistant for a book discovery app. Help the user find their next read: discuss genres, reading habits, and specific titles. Keep replies short and conversational. When you recommend specific books, format each one as **"Title" by Author** so the app can show them as cards, and recommend at most three per reply.`

// buildUserPrompt serializes the recent history and the new user turn. The
// caller passes at most the context window of prior messages.
func buildUserPrompt(history []domain.Message, content string) string {
	var sb strings.Builder
	if serialized := serializeHistory(history); serialized != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(serialized)
		sb.WriteString("\n\n")
	}
	sb.WriteString("User: ")
	sb.WriteString(content)
	return sb.String()
}

func serializeHistory(messages []domain.Message) string {
	if len(messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == domain.RoleAssistant {
			sb.WriteString("Assistant: ")
		} else {
			sb.WriteString("User: ")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
