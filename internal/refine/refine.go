// Package refine rewrites draft confessions and comments with a language
// model before they are posted.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/UkralStul/confession-feed/internal/fetch"
)

// ErrEmptyDraft is returned for blank input.
var ErrEmptyDraft = errors.New("refine: draft is empty")

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Target is what the draft will become.
type Target string

const (
	TargetConfession Target = "confession"
	TargetComment    Target = "comment"
)

// DefaultTimeout is longer than ordinary API calls.
const DefaultTimeout = 60 * time.Second

// Refiner bounds each generation by its own timeout.
type Refiner struct {
	gen     Generator
	timeout time.Duration
}

// New creates a refiner. A zero timeout uses DefaultTimeout.
func New(gen Generator, timeout time.Duration) *Refiner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Refiner{gen: gen, timeout: timeout}
}

func prompt(target Target, draft string) string {
	return fmt.Sprintf(`Rewrite the following anonymous %s so it reads clearly and kindly.
Keep the meaning and the first-person voice. Do not add names or details.
Reply with the rewritten text only.

%s`, target, draft)
}

// Refine returns the rewritten draft. Failures are *fetch.Error values so
// callers handle them like any other call.
func (r *Refiner) Refine(ctx context.Context, target Target, draft string) (string, error) {
	draft = strings.TrimSpace(draft)
	if draft == "" {
		return "", ErrEmptyDraft
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	out, err := r.gen.Generate(callCtx, prompt(target, draft))
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			err = callCtx.Err()
		}
		return "", fetch.Classify(ctx, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &fetch.Error{Kind: fetch.KindUnknown, Message: "empty refinement"}
	}
	return out, nil
}

// Gemini generates text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini generator for model.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil &&
		len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", nil
}
