// Package vision answers questions about image files. The reasoning
// loop drives captioning and object-detection tools, each backed by a
// vision completion over the image itself.
package vision

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/docqa/backend/internal/agent"
	"github.com/docqa/backend/internal/reasoning"
	"github.com/docqa/backend/pkg/logger"
)

type LLM interface {
	reasoning.LLM
	CompleteVision(ctx context.Context, imagePath, prompt string) (string, error)
}

type Agent struct {
	llm           LLM
	maxIterations int
}

func New(l LLM, maxIterations int) *Agent {
	return &Agent{llm: l, maxIterations: maxIterations}
}

func (a *Agent) Kind() string { return agent.KindVision }

const systemPrompt = `You are answering a question about an image.
You cannot see the image directly; use the tools to look at it. Gather
what you need, then give a final answer grounded in the observations.`

func (a *Agent) Answer(ctx context.Context, req agent.Request) (*agent.Answer, error) {
	answer, err := reasoning.New(a.llm, a.maxIterations).
		Run(ctx, systemPrompt, req.Question, a.tools(req.Path))
	if err != nil {
		if !errors.Is(err, reasoning.ErrBudgetExhausted) {
			return nil, err
		}
		logger.Warn("Vision reasoning budget exhausted, falling back",
			zap.String("stem", req.Stem),
		)
		answer, err = a.llm.CompleteVision(ctx, req.Path, req.Question)
		if err != nil {
			return nil, err
		}
		return &agent.Answer{Text: answer, Kind: a.Kind(), Notes: "single-shot fallback"}, nil
	}

	return &agent.Answer{Text: answer, Kind: a.Kind()}, nil
}

func (a *Agent) tools(imagePath string) []reasoning.Tool {
	return []reasoning.Tool{
		{
			Name:        "describe_image",
			Description: "Describe the image. Input: an optional aspect to focus on.",
			Run: func(ctx context.Context, input string) (string, error) {
				prompt := "Describe this image in detail."
				if focus := strings.TrimSpace(input); focus != "" {
					prompt = "Describe this image, focusing on: " + focus
				}
				return a.llm.CompleteVision(ctx, imagePath, prompt)
			},
		},
		{
			Name:        "detect_objects",
			Description: "List the distinct objects visible in the image with rough positions. Input is ignored.",
			Run: func(ctx context.Context, _ string) (string, error) {
				return a.llm.CompleteVision(ctx, imagePath,
					"List every distinct object visible in this image, one per line, with its rough position.")
			},
		},
		{
			Name:        "read_text",
			Description: "Transcribe any text visible in the image. Input is ignored.",
			Run: func(ctx context.Context, _ string) (string, error) {
				return a.llm.CompleteVision(ctx, imagePath,
					"Transcribe all text visible in this image. If there is none, say so.")
			},
		},
	}
}
