package chat

import "fmt"

// PromptInput carries everything a prompt template may draw on. Context is
// the joined retrieved facts (empty when retrieval is disabled or found
// nothing); ChatHistory is the rendered transcript, oldest turn first.
type PromptInput struct {
	Question    string
	Context     string
	ChatHistory string
}

// PromptFunc renders the final model prompt. Implementations must be pure:
// no side effects, no mutation of the input.
type PromptFunc func(in PromptInput) string

const ragPromptTemplate = `You are a helpful assistant with access to a knowledge base.
Answer the question at the end using the provided context and the chat history; either source is fine.
If the answer appears in neither, say you do not know rather than guessing.

Chat history:
%s

Context:
%s

Question: %s
Answer:`

const noContextPromptTemplate = `You are a helpful assistant.
Answer the question at the end, drawing on the chat history when it is relevant.

Chat history:
%s

Question: %s
Answer:`

// DefaultRAGPrompt is the standard retrieval-augmented template, used when
// no custom template is configured.
func DefaultRAGPrompt(in PromptInput) string {
	return fmt.Sprintf(ragPromptTemplate, in.ChatHistory, in.Context, in.Question)
}

// NoContextPrompt is the template used when retrieval is disabled and no
// custom template is configured. It never mentions a context section, so a
// model is not primed to expect facts that will not arrive.
func NoContextPrompt(in PromptInput) string {
	return fmt.Sprintf(noContextPromptTemplate, in.ChatHistory, in.Question)
}
