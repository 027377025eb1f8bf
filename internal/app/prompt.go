package app

import (
	"regexp"
	"strings"

	"chatforge/internal/ai"
	"chatforge/internal/model"
)

// Stored templates sometimes end in a literal "Question: ..." continuation
// left over from single-shot prompt formats. It would duplicate the real
// question slot, so it is stripped before assembly.
var questionTail = regexp.MustCompile(`(?s)Question:.*$`)

// CleanTemplate removes a trailing "Question:" continuation from a stored
// prompt template.
func CleanTemplate(template string) string {
	return strings.TrimSpace(questionTail.ReplaceAllString(template, ""))
}

// AssemblePrompt builds the model-ready message list with a fixed slot order:
// system (instructions + retrieved context), prior turns in original order,
// then the new human turn. Empty context and empty history are both fine.
func AssemblePrompt(template, context string, history []model.Message, question string) []ai.ChatMessage {
	system := CleanTemplate(template) + "\n\nContext:\n" + context

	messages := make([]ai.ChatMessage, 0, len(history)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: system})
	for _, turn := range history {
		role := "user"
		if turn.Role == model.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}
