package service

import (
	"strings"

	"ragchat/internal/domain"
)

// DefaultSystemPrompt is used when the configuration does not provide one.
const DefaultSystemPrompt = "You are a helpful support assistant. Answer using only the provided context and the conversation so far."

// BuildPrompt stuffs every retrieved chunk, the conversation window and the
// question into a single user message after the system instruction.
func BuildPrompt(system string, results []domain.SearchResult, history []domain.Turn, question string) []domain.Message {
	if system == "" {
		system = DefaultSystemPrompt
	}
	var b strings.Builder
	b.WriteString("Use the following pieces of context to answer the question at the end. ")
	b.WriteString("If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Chunk.Text)
	}
	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, t := range history {
			b.WriteString("User: " + t.User + "\n")
			b.WriteString("Assistant: " + t.Assistant + "\n")
		}
	} else {
		b.WriteString("\n")
	}
	b.WriteString("\nQuestion: " + question + "\nHelpful Answer:")
	return []domain.Message{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: b.String()},
	}
}
