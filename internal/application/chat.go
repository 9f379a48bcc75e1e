package application

import "context"

// Persona is the system prompt sent with every free-form chat turn.
const Persona = "You are a drive-in assistant. Help customers with their orders."

// ChatCompleter answers free-form customer questions.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt, persona string) (string, error)
	Name() string
}
