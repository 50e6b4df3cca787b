package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"dispatch/internal/service"
)

// GeminiRecommender generates a one-line passenger-facing note about a match
// using Google's Gemini models. It is strictly optional: the orchestrator
// degrades to no recommendation when it fails or times out.
type GeminiRecommender struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiRecommender initializes a new Gemini client. apiKey comes from
// configuration.
func NewGeminiRecommender(ctx context.Context, apiKey string) (*GeminiRecommender, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Gemini 2.0 Flash for low latency; a match response cannot wait on a
	// slow model.
	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.4)

	return &GeminiRecommender{client: client, model: model}, nil
}

// Close cleans up the Gemini client resources.
func (r *GeminiRecommender) Close() {
	r.client.Close()
}

// Suggest produces a single friendly sentence about the matched driver.
func (r *GeminiRecommender) Suggest(ctx context.Context, best *service.ScoredCandidate, pickup string) (string, error) {
	prompt := fmt.Sprintf(
		"You write one short, friendly sentence telling a ride-hailing passenger why their matched driver is a good pick. "+
			"No markdown, no quotes, one sentence only.\n\n"+
			"Pickup: %s\nDriver: %s\nRating: %.1f\nETA minutes: %.0f\nHighlights: %s",
		pickup,
		best.Driver.DisplayName,
		best.Driver.Rating,
		best.Driver.EstimatedEtaMinutes,
		strings.Join(best.Reasons, "; "),
	)

	resp, err := r.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generation error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(out.String()), nil
}

var _ service.Recommender = (*GeminiRecommender)(nil)
