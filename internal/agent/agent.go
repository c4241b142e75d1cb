// Package agent defines the question-answering agents and the router
// that picks one by file extension.
package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/docqa/backend/pkg/apperr"
)

// Agent kinds, recorded in QA history and metrics labels.
const (
	KindTabular   = "tabular"
	KindRetrieval = "retrieval"
	KindVision    = "vision"
)

type Request struct {
	Stem     string
	Path     string
	Question string
}

type Answer struct {
	Text  string
	Kind  string
	Notes string
}

type Agent interface {
	Kind() string
	Answer(ctx context.Context, req Request) (*Answer, error)
}

// Router maps lowercase file extensions to agents.
type Router struct {
	byExt map[string]Agent
}

func NewRouter() *Router {
	return &Router{byExt: make(map[string]Agent)}
}

func (r *Router) Register(a Agent, exts ...string) {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = a
	}
}

// Route returns the agent for the extension. Unknown extensions fail
// with the full supported set so the caller can report it directly.
func (r *Router) Route(ext string) (Agent, error) {
	a, ok := r.byExt[strings.ToLower(ext)]
	if !ok {
		return nil, apperr.Validation("no agent handles %q files; supported extensions: %s",
			ext, strings.Join(r.Supported(), ", "))
	}
	return a, nil
}

func (r *Router) Supported() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
