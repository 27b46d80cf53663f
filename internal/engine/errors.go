package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

var (
	// ErrMissingAPIKey means no Gemini API key was configured.
	ErrMissingAPIKey = errors.New("GEMINI_API_KEY is not configured")
	// ErrInvalidAPIKey means the service rejected the configured key.
	ErrInvalidAPIKey = errors.New("API key not valid, check GEMINI_API_KEY")
	// ErrNoChat means Send was called before a chat was started.
	ErrNoChat = errors.New("chat has not been started")
)

// SafetyRating is one safety category verdict attached to a candidate.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// Diagnostics explains why a reply carried no text, as far as the service says.
type Diagnostics struct {
	FinishReason  string         `json:"finish_reason,omitempty"`
	BlockReason   string         `json:"block_reason,omitempty"`
	SafetyRatings []SafetyRating `json:"safety_ratings,omitempty"`
}

func (d Diagnostics) String() string {
	var parts []string
	if d.FinishReason != "" {
		parts = append(parts, "finish_reason="+d.FinishReason)
	}
	if d.BlockReason != "" {
		parts = append(parts, "block_reason="+d.BlockReason)
	}
	for _, r := range d.SafetyRatings {
		if r.Blocked {
			parts = append(parts, fmt.Sprintf("blocked %s (%s)", r.Category, r.Probability))
		}
	}
	return strings.Join(parts, ", ")
}

// EmptyReplyError is returned when the model produced no usable text,
// usually because a safety filter stopped it.
type EmptyReplyError struct {
	Diagnostics Diagnostics
}

func (e *EmptyReplyError) Error() string {
	if s := e.Diagnostics.String(); s != "" {
		return "model returned an empty reply (" + s + ")"
	}
	return "model returned an empty reply"
}

// classifyError maps SDK errors onto the package's sentinel errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			if isKeyMessage(gerr.Message) || isKeyMessage(gerr.Body) {
				return fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
			}
		}
	}
	if isKeyMessage(err.Error()) {
		return fmt.Errorf("%w: %v", ErrInvalidAPIKey, err)
	}
	return err
}

func isKeyMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "api key not valid") || strings.Contains(s, "api_key_invalid")
}
