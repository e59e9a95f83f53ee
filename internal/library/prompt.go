package library

import (
	"fmt"
	"strings"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/ollama"
)

const (
	// Temperature is the sampling temperature for analysis and chat.
	Temperature = 0.7

	// chatPageChars caps the page text included in the chat system prompt.
	chatPageChars = 2000

	// chatHistoryTurns caps the prior messages sent with a chat request.
	chatHistoryTurns = 10
)

const analysisSystemPrompt = `/no_think

You are an intelligent study assistant. Your role is to help users understand PDF documents by providing clear, insightful analysis of the content.

When analyzing a page, you should:
1. Summarize the key points and main ideas
2. Explain any complex concepts in simpler terms
3. Highlight important information or insights
4. Provide context or background knowledge when helpful
5. Point out connections to other concepts or fields
6. Suggest questions the reader might want to explore further

Keep your analysis concise but thorough, and focus on enhancing understanding rather than just repeating the content.`

// AnalysisMessages builds the prompt for analyzing one page.
func AnalysisMessages(filename string, page int, context, text string) []ollama.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Please analyze page %d of the document %q.\n\n", page, filename)
	if context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n\n", context)
	}
	fmt.Fprintf(&b, "Page content:\n%s\n\n", text)
	b.WriteString("Provide a helpful analysis that will aid in understanding this content.")

	return []ollama.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// ChatMessages builds the prompt for a chat turn about the current page.
// Only the most recent history is kept.
func ChatMessages(filename string, page int, pageText string, history []ollama.Message, message string) []ollama.Message {
	excerpt := pageText
	if r := []rune(pageText); len(r) > chatPageChars {
		excerpt = string(r[:chatPageChars]) + "..."
	}

	system := fmt.Sprintf(`/no_think
You are an intelligent study assistant helping a user understand a PDF document.

Current context:
- Document: %s
- Current page: %d
- Page content: %s

You should:
1. Answer questions directly related to the PDF content
2. Provide explanations and clarifications
3. Help connect concepts within the document
4. Suggest related questions or areas to explore
5. Reference specific parts of the content when relevant

Keep responses conversational but informative.`, filename, page, excerpt)

	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	msgs := make([]ollama.Message, 0, len(history)+2)
	msgs = append(msgs, ollama.Message{Role: "system", Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, ollama.Message{Role: "user", Content: message})
	return msgs
}
