package ai

import "context"

// Message is one turn of a chat completion prompt. Role is "system",
// "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// TextGenerator produces a completion from an ordered message list.
type TextGenerator interface {
	GenerateText(ctx context.Context, messages []Message) (string, error)
}
