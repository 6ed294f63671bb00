// Package gen holds the planning and generation collaborators. Both are
// opaque text-in/text-out calls, and every failure mode (unreachable service,
// timeout, degenerate output) is absorbed into a deterministic local fallback
// so the synthesis loop always makes forward progress.
package gen

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// LLMClient is the minimal completion interface the collaborators need.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CollaboratorError wraps a planner or generator failure. It never escapes
// the collaborators; it exists for logging and classification only.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// DefaultCallTimeout bounds one collaborator call. A timed-out call is
// handled exactly like an unreachable service.
const DefaultCallTimeout = 60 * time.Second

const defaultModel = "gemini-2.5-flash"

// GeminiClient is an LLMClient backed by the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient creates a Gemini-backed client. model and timeout fall back
// to defaults when zero-valued.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

// Complete sends one prompt under the per-call timeout.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}
