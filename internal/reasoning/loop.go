// Package reasoning runs a bounded act-observe loop: the model picks a
// tool, the loop executes it and feeds the observation back, until the
// model emits a final answer or the iteration budget runs out.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

// ErrBudgetExhausted reports that the loop hit its iteration cap
// without a final answer. Callers typically fall back to a single-shot
// completion.
var ErrBudgetExhausted = errors.New("reasoning budget exhausted")

type LLM interface {
	CompleteMessages(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// Tool is one action the model may take. Run receives the model's
// action input verbatim and returns the observation text.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, input string) (string, error)
}

type Loop struct {
	llm           LLM
	maxIterations int
}

func New(llm LLM, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = 15
	}
	return &Loop{llm: llm, maxIterations: maxIterations}
}

const formatInstructions = `Respond in exactly one of two forms.

To use a tool:
Thought: <your reasoning>
Action: <tool name>
Action Input: <input for the tool>

To finish:
Thought: <your reasoning>
Final Answer: <the answer to the question>`

// Run drives the loop until a final answer or the budget is spent.
// The transcript of every exchange stays in the message list so the
// model sees all prior observations.
func (l *Loop) Run(ctx context.Context, systemPrompt, question string, tools []Tool) (string, error) {
	byName := make(map[string]Tool, len(tools))
	var toolLines []string
	for _, t := range tools {
		byName[t.Name] = t
		toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}

	system := fmt.Sprintf("%s\n\nAvailable tools:\n%s\n\n%s",
		systemPrompt, strings.Join(toolLines, "\n"), formatInstructions)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}

	for i := 0; i < l.maxIterations; i++ {
		reply, err := l.llm.CompleteMessages(ctx, messages)
		if err != nil {
			return "", err
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply,
		})

		if answer, ok := parseFinalAnswer(reply); ok {
			logger.Debug("Reasoning loop finished", zap.Int("iterations", i+1))
			return answer, nil
		}

		action, input, ok := parseAction(reply)
		observation := ""
		switch {
		case !ok:
			observation = "Could not parse a tool call. " + formatInstructions
		default:
			tool, found := byName[action]
			if !found {
				observation = fmt.Sprintf("Unknown tool %q. Available tools: %s",
					action, strings.Join(toolNames(tools), ", "))
			} else {
				out, err := tool.Run(ctx, input)
				if err != nil {
					observation = "Tool error: " + err.Error()
				} else {
					observation = out
				}
				logger.Debug("Tool executed",
					zap.String("tool", action),
					zap.Int("iteration", i+1),
				)
			}
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Observation: " + observation,
		})
	}

	return "", ErrBudgetExhausted
}

func toolNames(tools []Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func parseFinalAnswer(reply string) (string, bool) {
	idx := strings.Index(reply, "Final Answer:")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(reply[idx+len("Final Answer:"):]), true
}

// parseAction pulls the Action and Action Input lines. The input runs
// to the end of the reply so multi-line inputs survive.
func parseAction(reply string) (action, input string, ok bool) {
	actIdx := strings.Index(reply, "Action:")
	if actIdx < 0 {
		return "", "", false
	}
	rest := reply[actIdx+len("Action:"):]

	inIdx := strings.Index(rest, "Action Input:")
	if inIdx < 0 {
		action = firstLine(rest)
		return strings.TrimSpace(action), "", action != ""
	}

	action = strings.TrimSpace(firstLine(rest[:inIdx]))
	input = strings.TrimSpace(rest[inIdx+len("Action Input:"):])
	return action, input, action != ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
