package session

import (
	"errors"
	"fmt"

	"github.com/tatianab/adventure-gm/internal/engine"
)

// ErrNotReady is returned by SubmitTheme and SendMessage before Initialize
// has succeeded.
var ErrNotReady = errors.New("session is not initialized")

// ErrorKind categorises failures shown to the player.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindInitialization
	KindInvalidKey
	KindEmptyReply
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitialization:
		return "initialization"
	case KindInvalidKey:
		return "invalid_key"
	case KindEmptyReply:
		return "empty_reply"
	default:
		return "transport"
	}
}

// Error is a failed round-trip with the model. Every kind is recoverable by
// retrying the action.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

const diagnosticsHint = " Check finish_reason and safety_ratings in the log file for details."

// UserMessage is the text shown to the player.
func (e *Error) UserMessage() string {
	var msg string
	switch e.Kind {
	case KindInitialization:
		switch {
		case errors.Is(e.Err, engine.ErrMissingAPIKey):
			msg = "The Gemini API key is not configured. Set GEMINI_API_KEY and retry."
		case errors.Is(e.Err, engine.ErrInvalidAPIKey):
			msg = "The Gemini API key is not valid. Check GEMINI_API_KEY and retry."
		default:
			msg = fmt.Sprintf("Could not start the adventure: %v. Check the API key and network connection.", e.Err)
		}
	case KindInvalidKey:
		msg = "The Gemini API key is not valid. Check GEMINI_API_KEY."
	case KindEmptyReply:
		msg = "The AI returned an empty reply."
	default:
		msg = fmt.Sprintf("Communication with the AI failed: %v", e.Err)
	}

	var empty *engine.EmptyReplyError
	if errors.As(e.Err, &empty) {
		if e.Kind == KindInitialization {
			msg = "Could not start the adventure: the AI returned an empty reply."
		}
		if d := empty.Diagnostics.String(); d != "" {
			msg += " (" + d + ")"
		}
		msg += diagnosticsHint
	}
	return msg
}

// classify wraps a transport failure from op in the session taxonomy.
func classify(op string, err error) *Error {
	var empty *engine.EmptyReplyError
	switch {
	case errors.As(err, &empty):
		return &Error{Kind: KindEmptyReply, Op: op, Err: err}
	case errors.Is(err, engine.ErrInvalidAPIKey):
		return &Error{Kind: KindInvalidKey, Op: op, Err: err}
	default:
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
}
