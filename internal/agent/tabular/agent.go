package tabular

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/llm"
	"github.com/docqa/backend/internal/reasoning"
	"github.com/docqa/backend/pkg/logger"
)

// LLM is the completion surface the agent needs.
type LLM interface {
	reasoning.LLM
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

// Summaries loads the cached document summary used as prompt context.
// A missing summary is not an error for the agent; the prompt simply
// omits it.
type Summaries interface {
	Load(stem string) (string, error)
}

type Agent struct {
	llm           LLM
	summaries     Summaries
	maxIterations int
}

func New(l LLM, summaries Summaries, maxIterations int) *Agent {
	return &Agent{llm: l, summaries: summaries, maxIterations: maxIterations}
}

func (a *Agent) Kind() string { return agent.KindTabular }

const systemPrompt = `You are a data analyst answering questions about a table.
Use the tools to inspect the data before answering. Missing cells were
filled with 0, so treat zeros that look out of place as possibly absent
data rather than measurements.`

// Answer loads the table and drives the reasoning loop over it. Any
// loop failure, whether an exhausted budget or an upstream error,
// degrades to a single-shot completion over the table head.
func (a *Agent) Answer(ctx context.Context, req agent.Request) (*agent.Answer, error) {
	table, err := Load(req.Path)
	if err != nil {
		return nil, err
	}

	summaryText := a.loadSummary(req.Stem)

	answer, err := reasoning.New(a.llm, a.maxIterations).
		Run(ctx, loopPrompt(summaryText), req.Question, a.tools(table))
	if err == nil {
		return &agent.Answer{Text: answer, Kind: a.Kind()}, nil
	}

	logger.Warn("Tabular reasoning failed, falling back to single shot",
		zap.String("stem", req.Stem),
		zap.Error(err),
	)
	answer, err = a.singleShot(ctx, table, summaryText, req.Question)
	if err != nil {
		return nil, err
	}
	return &agent.Answer{Text: answer, Kind: a.Kind(), Notes: "single-shot fallback"}, nil
}

func (a *Agent) loadSummary(stem string) string {
	if a.summaries == nil {
		return ""
	}
	text, err := a.summaries.Load(stem)
	if err != nil {
		return ""
	}
	return text
}

func loopPrompt(summaryText string) string {
	if summaryText == "" {
		return systemPrompt
	}
	return fmt.Sprintf("%s\n\nDocument summary:\n%s", systemPrompt, summaryText)
}

func (a *Agent) tools(table *Table) []reasoning.Tool {
	return []reasoning.Tool{
		{
			Name:        "describe_table",
			Description: "Show column names, column types and row count. Input is ignored.",
			Run: func(_ context.Context, _ string) (string, error) {
				return table.Describe(), nil
			},
		},
		{
			Name:        "show_rows",
			Description: "Show the first N data rows as a markdown table. Input: N (default 10).",
			Run: func(_ context.Context, input string) (string, error) {
				n := 10
				if v, err := strconv.Atoi(strings.TrimSpace(input)); err == nil && v > 0 {
					n = v
				}
				if n > 50 {
					n = 50
				}
				return table.Head(n), nil
			},
		},
		{
			Name:        "column_stats",
			Description: "Summarize one column: numeric aggregates or distinct counts. Input: column name.",
			Run: func(_ context.Context, input string) (string, error) {
				return table.ColumnStats(input)
			},
		},
		{
			Name:        "value_counts",
			Description: "List the most frequent values in a column. Input: column name.",
			Run: func(_ context.Context, input string) (string, error) {
				return table.ValueCounts(input, 10)
			},
		},
	}
}

func (a *Agent) singleShot(ctx context.Context, table *Table, summaryText, question string) (string, error) {
	summarySection := ""
	if summaryText != "" {
		summarySection = fmt.Sprintf("Summary:\n%s\n\n", summaryText)
	}

	prompt := fmt.Sprintf(`Answer the question using only this table excerpt.
Missing cells were filled with 0.

%sSchema:
%s

First rows:
%s

Question: %s`, summarySection, table.Describe(), table.Head(20), question)

	return a.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are a data analyst. Answer concisely from the table provided.",
		UserPrompt:   prompt,
		Temperature:  0,
	})
}
