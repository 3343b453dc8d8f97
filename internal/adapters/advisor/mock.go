package advisor

import (
	"context"

	"github.com/andrescamacho/fleetdispatch-go/internal/domain/shared"
)

// Disabled is the advisor used when no API key is configured. Every call
// fails as unavailable, which lands the agents on their rule-based
// fallbacks.
type Disabled struct{}

// Complete always reports the advisor as unavailable.
func (Disabled) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", shared.NewUnavailable("advisor disabled: no API key configured", nil)
}

// Scripted is a test advisor that replays canned responses in order, then
// an error once the script runs out.
type Scripted struct {
	Responses []string
	Err       error

	Prompts []struct {
		System string
		User   string
	}
	next int
}

// Complete records the prompt and returns the next scripted response.
func (s *Scripted) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.Prompts = append(s.Prompts, struct {
		System string
		User   string
	}{systemPrompt, userPrompt})

	if s.Err != nil {
		return "", s.Err
	}
	if s.next >= len(s.Responses) {
		return "", shared.NewUnavailable("scripted advisor exhausted", nil)
	}
	resp := s.Responses[s.next]
	s.next++
	return resp, nil
}
