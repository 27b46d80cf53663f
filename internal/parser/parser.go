// Package parser splits a model reply into narrative prose and the game
// state embedded after it in a ```json fence.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"
	"github.com/tatianab/adventure-gm/internal/models"
)

var fencePattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// Result is the outcome of parsing one reply. State is nil when the reply
// carried no payload or the payload could not be decoded; Err tells the two apart.
type Result struct {
	Narrative string
	State     *models.GameState
	Err       error
	// FieldErr is set when State was decoded but some fields had the wrong
	// type and were left empty.
	FieldErr error
}

// DecodeError describes a fenced payload that could not be decoded.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode game state: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errNotObject = errors.New("payload is not a JSON object")

// Parse splits raw into narrative and game state. It never fails: a missing
// or malformed payload yields a nil State and the whole reply as narrative.
func Parse(raw string) Result {
	return parse(raw, false)
}

func parse(raw string, lenient bool) Result {
	loc := fencePattern.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Result{Narrative: strings.TrimSpace(raw)}
	}

	payload := StripComments(strings.TrimSpace(raw[loc[2]:loc[3]]))
	state, fieldErr, err := decode(payload)
	if err != nil && lenient {
		if repaired, rerr := jsonrepair.JSONRepair(payload); rerr == nil {
			if s, ferr, derr := decode(repaired); derr == nil {
				state, fieldErr, err = s, ferr, nil
			}
		}
	}
	if err != nil {
		return Result{
			Narrative: strings.TrimSpace(raw),
			Err:       &DecodeError{Payload: payload, Err: err},
		}
	}

	return Result{
		Narrative: strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:]),
		State:     state,
		FieldErr:  fieldErr,
	}
}

// decode reads payload as a game state. Only a payload that is not a JSON
// object is fatal; fields of the wrong type are skipped and reported in
// fieldErr while the rest of the state is kept.
func decode(payload string) (state *models.GameState, fieldErr error, err error) {
	if uerr := json.Unmarshal([]byte(payload), &state); uerr != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(uerr, &typeErr) || !strings.HasPrefix(payload, "{") {
			return nil, nil, uerr
		}
		fieldErr = uerr
		state.PlayerStatus.Inventory = compact(state.PlayerStatus.Inventory)
	}
	if state == nil {
		return nil, nil, errNotObject
	}
	return state, fieldErr, nil
}

// compact drops the empty entries a mistyped inventory item leaves behind.
func compact(items []string) []string {
	var out []string
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			out = append(out, it)
		}
	}
	return out
}

// Parser is Parse with logging and an optional repair pass.
type Parser struct {
	// Lenient runs a payload that fails strict decoding through jsonrepair
	// and retries once.
	Lenient bool
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, lenient bool) *Parser {
	return &Parser{
		Lenient: lenient,
		logger:  logger.With().Str("component", "parser").Logger(),
	}
}

func (p *Parser) Parse(raw string) Result {
	res := parse(raw, p.Lenient)
	if res.Err != nil {
		var de *DecodeError
		ev := p.logger.Warn().Err(res.Err)
		if errors.As(res.Err, &de) {
			ev = ev.Str("payload", de.Payload)
		}
		ev.Msg("failed to parse game state from reply")
	}
	if res.FieldErr != nil {
		p.logger.Warn().Err(res.FieldErr).Msg("game state has mistyped fields, keeping the rest")
	}
	return res
}

// Format renders narrative and state in the reply shape the model is asked
// to produce.
func Format(narrative string, state models.GameState) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// Encoding a plain struct of strings cannot fail.
	_ = enc.Encode(state)

	return strings.TrimSpace(narrative) + "\n\n```json\n" + strings.TrimSpace(buf.String()) + "\n```"
}
