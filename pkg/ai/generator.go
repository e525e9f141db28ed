package ai

import "context"

// TextGenerator generates text from a system prompt and a user prompt.
// The client is stateless: callers own history serialization and truncation.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
