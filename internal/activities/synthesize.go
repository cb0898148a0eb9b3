package activities

import (
	"context"
	"fmt"
	"strings"

	"github.com/shahryar908/agenticrag/internal/llm"
	"github.com/shahryar908/agenticrag/internal/workflows"
)

// Synthesize picks a prompt template by query type and generates the answer.
func (a *Activities) Synthesize(ctx context.Context, s workflows.State) (string, error) {
	req := synthesisRequest(s)
	answer, err := a.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", workflows.ErrEmptyAnswer
	}
	return answer, nil
}

func synthesisRequest(s workflows.State) llm.Request {
	req := llm.Request{MaxTokens: generateMaxTokens, Purpose: "generate"}
	switch s.QueryType {
	case workflows.QueryTypeGreeting:
		req.System = greetingSystemPrompt
		req.User = s.Query
		req.Temperature = greetingTemperature
	case workflows.QueryTypeCalculation:
		req.System = calculationSystemPrompt
		req.User = s.Query
		req.Temperature = answerTemperature
	default:
		req.System = groundedSystemPrompt
		req.User = fmt.Sprintf(groundedUserTemplate, buildContext(s), s.Query)
		req.Temperature = answerTemperature
	}
	return req
}
