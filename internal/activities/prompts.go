package activities

import (
	"fmt"
	"strings"

	"github.com/shahryar908/agenticrag/internal/workflows"
)

const classifyPromptTemplate = `Analyze this query and classify it:

Query: "%s"

Classify into ONE of these types:
1. greeting - Hi, hello, how are you, etc.
2. factual - Questions starting with "what is", "explain", "describe", "tell me about" specific topics
3. calculation - Math or numerical computation
4. general - Broad general knowledge (history, science facts not in docs)
5. web_current - Needs current/recent information from web (news, today, latest)

IMPORTANT: If the query asks about LangGraph, RAG, ChromaDB, Groq, or agentic systems, classify as "factual" because we have specific docs about these.

Response format (one word only): greeting/factual/calculation/general/web_current`

const (
	greetingSystemPrompt    = "You are a friendly assistant. Respond to greetings naturally and warmly."
	calculationSystemPrompt = "You are a helpful calculator. Solve the math problem accurately."
	groundedSystemPrompt    = `You are a helpful assistant that answers questions accurately.

Rules:
- Use the provided context if available
- If context doesn't have the answer, say so politely
- Be concise and accurate
- Cite sources when using context (e.g., "According to Doc 1...")
`
	groundedUserTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer:"

	noContext = "No specific context available."
)

const (
	classifyTemperature = 0.1
	classifyMaxTokens   = 50
	greetingTemperature = 0.7
	answerTemperature   = 0.3
	generateMaxTokens   = 500
	lowConfidenceNote   = "Low confidence in retrieval. Using LLM directly."
	noDocumentsGateNote = "No documents retrieved, nothing to check."
)

func classifyPrompt(query string) string {
	return fmt.Sprintf(classifyPromptTemplate, query)
}

// buildContext renders knowledge-base passages followed by web results.
func buildContext(s workflows.State) string {
	var parts []string
	if len(s.RetrievedDocs) > 0 {
		parts = append(parts, "Knowledge Base Context:")
		for i, d := range s.RetrievedDocs {
			parts = append(parts, fmt.Sprintf("[Doc %d] %s", i+1, d.Text))
		}
	}
	if len(s.WebResults) > 0 {
		parts = append(parts, "\nWeb Search Results:")
		for i, r := range s.WebResults {
			parts = append(parts, fmt.Sprintf("[Result %d] %s", i+1, r))
		}
	}
	if len(parts) == 0 {
		return noContext
	}
	return strings.Join(parts, "\n")
}

func routeNote(t workflows.QueryType) string {
	switch {
	case t.NeedsRetrieval():
		return "Will retrieve from knowledge base."
	case t.NeedsWebSearch():
		return "Will search the web for current info."
	default:
		return "Will generate answer directly."
	}
}
