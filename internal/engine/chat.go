package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
)

// Chat is one ongoing conversation with the model.
type Chat interface {
	Send(ctx context.Context, text string) (*Reply, error)
}

// Reply is the model's answer to a single message.
type Reply struct {
	Text        string
	Diagnostics Diagnostics
}

type geminiChat struct {
	cs     *genai.ChatSession
	logger zerolog.Logger
}

func (c *geminiChat) Send(ctx context.Context, text string) (*Reply, error) {
	if c == nil || c.cs == nil {
		return nil, ErrNoChat
	}

	resp, err := c.cs.SendMessage(ctx, genai.Text(text))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			empty := &EmptyReplyError{Diagnostics: blockedDiagnostics(blocked)}
			c.logEmpty(empty)
			return nil, empty
		}
		return nil, classifyError(err)
	}

	reply := replyFromResponse(resp)
	if strings.TrimSpace(reply.Text) == "" {
		empty := &EmptyReplyError{Diagnostics: reply.Diagnostics}
		c.logEmpty(empty)
		return nil, empty
	}
	return reply, nil
}

func (c *geminiChat) logEmpty(err *EmptyReplyError) {
	c.logger.Error().
		Str("finish_reason", err.Diagnostics.FinishReason).
		Str("block_reason", err.Diagnostics.BlockReason).
		Interface("safety_ratings", err.Diagnostics.SafetyRatings).
		Msg("model returned an empty reply")
}

// replyFromResponse concatenates the text parts of the first candidate.
func replyFromResponse(resp *genai.GenerateContentResponse) *Reply {
	reply := &Reply{}
	if resp == nil {
		return reply
	}
	if resp.PromptFeedback != nil {
		reply.Diagnostics.BlockReason = blockReason(resp.PromptFeedback)
	}
	if len(resp.Candidates) == 0 {
		return reply
	}

	cand := resp.Candidates[0]
	reply.Diagnostics.FinishReason = cand.FinishReason.String()
	reply.Diagnostics.SafetyRatings = convertRatings(cand.SafetyRatings)
	if cand.Content == nil {
		return reply
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	reply.Text = b.String()
	return reply
}

func blockedDiagnostics(err *genai.BlockedError) Diagnostics {
	var d Diagnostics
	if err.Candidate != nil {
		d.FinishReason = err.Candidate.FinishReason.String()
		d.SafetyRatings = convertRatings(err.Candidate.SafetyRatings)
	}
	if err.PromptFeedback != nil {
		d.BlockReason = blockReason(err.PromptFeedback)
		if len(d.SafetyRatings) == 0 {
			d.SafetyRatings = convertRatings(err.PromptFeedback.SafetyRatings)
		}
	}
	return d
}

func blockReason(pf *genai.PromptFeedback) string {
	if pf.BlockReason == genai.BlockReasonUnspecified {
		return ""
	}
	return pf.BlockReason.String()
}

func convertRatings(in []*genai.SafetyRating) []SafetyRating {
	if len(in) == 0 {
		return nil
	}
	out := make([]SafetyRating, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		out = append(out, SafetyRating{
			Category:    r.Category.String(),
			Probability: r.Probability.String(),
			Blocked:     r.Blocked,
		})
	}
	return out
}

// String is handy in logs and tests.
func (r *Reply) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q (%s)", r.Text, r.Diagnostics)
}
