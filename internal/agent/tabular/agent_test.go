package tabular

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/llm"
)

type scriptedLLM struct {
	replies     []string
	loopErr     error
	calls       int
	singleShots int
	seenSystem  string
	lastPrompt  string
}

func (s *scriptedLLM) CompleteMessages(_ context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	if len(messages) > 0 && messages[0].Role == openai.ChatMessageRoleSystem {
		s.seenSystem = messages[0].Content
	}
	if s.loopErr != nil {
		return "", s.loopErr
	}
	reply := s.replies[s.calls%len(s.replies)]
	s.calls++
	return reply, nil
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	s.singleShots++
	s.lastPrompt = req.UserPrompt
	return "fallback answer", nil
}

type fixedSummaries struct {
	text string
}

func (f fixedSummaries) Load(string) (string, error) {
	if f.text == "" {
		return "", errors.New("no summary")
	}
	return f.text, nil
}

func csvRequest(t *testing.T) agent.Request {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("region,amount\nwest,100\neast,200\n"), 0o644))
	return agent.Request{Stem: "sales", Path: path, Question: "total sales?"}
}

func TestAnswerUsesToolsThenConcludes(t *testing.T) {
	mock := &scriptedLLM{replies: []string{
		"Thought: check schema\nAction: describe_table\nAction Input: none",
		"Thought: sum it\nAction: column_stats\nAction Input: amount",
		"Thought: done\nFinal Answer: total is 300",
	}}
	a := New(mock, nil, 15)

	ans, err := a.Answer(context.Background(), csvRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "total is 300", ans.Text)
	assert.Equal(t, agent.KindTabular, ans.Kind)
	assert.Zero(t, mock.singleShots)
}

func TestAnswerFallsBackWhenBudgetExhausted(t *testing.T) {
	mock := &scriptedLLM{replies: []string{
		"Thought: looping\nAction: describe_table\nAction Input: none",
	}}
	a := New(mock, nil, 2)

	ans, err := a.Answer(context.Background(), csvRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", ans.Text)
	assert.Equal(t, 1, mock.singleShots)
	assert.Equal(t, "single-shot fallback", ans.Notes)
}

func TestAnswerFallsBackWhenLoopFails(t *testing.T) {
	mock := &scriptedLLM{loopErr: errors.New("upstream 502")}
	a := New(mock, nil, 15)

	ans, err := a.Answer(context.Background(), csvRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", ans.Text)
	assert.Equal(t, 1, mock.singleShots)
	assert.Equal(t, "single-shot fallback", ans.Notes)
}

func TestAnswerIncludesSummaryInBothPrompts(t *testing.T) {
	const synopsis = "Quarterly sales by region."
	mock := &scriptedLLM{loopErr: errors.New("upstream 502")}
	a := New(mock, fixedSummaries{text: synopsis}, 15)

	_, err := a.Answer(context.Background(), csvRequest(t))
	require.NoError(t, err)
	assert.Contains(t, mock.seenSystem, synopsis)
	assert.Contains(t, mock.lastPrompt, synopsis)
	assert.Contains(t, mock.lastPrompt, "Schema:")
}

func TestAnswerOmitsMissingSummary(t *testing.T) {
	mock := &scriptedLLM{replies: []string{"Final Answer: ok"}}
	a := New(mock, fixedSummaries{}, 15)

	_, err := a.Answer(context.Background(), csvRequest(t))
	require.NoError(t, err)
	assert.NotContains(t, mock.seenSystem, "Document summary")
}

func TestAnswerPropagatesLoadErrors(t *testing.T) {
	a := New(&scriptedLLM{replies: []string{"Final Answer: x"}}, nil, 15)

	_, err := a.Answer(context.Background(), agent.Request{
		Stem: "ghost", Path: "/nonexistent/ghost.csv", Question: "?",
	})
	assert.Error(t, err)
}
