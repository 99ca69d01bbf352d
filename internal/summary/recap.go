package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/voxelware/aura/internal/vision"
	"github.com/voxelware/aura/pkg/provider/llm"
)

// recapPrompt asks the model for the short briefing shown when a known
// person reappears in front of the camera.
const recapPrompt = `You brief the wearer of a pair of smart glasses about the person who just appeared in front of them.
Below are summaries of past conversations with this person, most recent first.
Write 1-3 sentences reminding the wearer who this is and what was last discussed.
Mention open follow-ups if any. Do not invent details that are not in the summaries.`

// maxRecapSummaries caps how much history is sent to the model.
const maxRecapSummaries = 20

// Recap condenses all stored summaries for the person into a short briefing.
// Returns "" when the person has no history. Honors ctx for the deadline the
// caller imposes.
func (s *LLMSummarizer) Recap(ctx context.Context, personID vision.PersonID) (string, error) {
	summaries, err := s.store.ListSummaries(ctx, personID)
	if err != nil {
		return "", fmt.Errorf("recap: %w", err)
	}
	if len(summaries) == 0 {
		return "", nil
	}
	if len(summaries) > maxRecapSummaries {
		summaries = summaries[:maxRecapSummaries]
	}

	var sb strings.Builder
	for i, sum := range summaries {
		fmt.Fprintf(&sb, "%d. (%s) %s\n", i+1, sum.CreatedAt.Format("2006-01-02 15:04"), sum.Text)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: recapPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: sb.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("recap: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
