// Package session runs one adventure: it owns the transcript, the current
// game state and the conversation phase, and it is the only writer of all three.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tatianab/adventure-gm/internal/engine"
	"github.com/tatianab/adventure-gm/internal/models"
	"github.com/tatianab/adventure-gm/internal/parser"
)

// Transport opens conversations with the model.
type Transport interface {
	StartChat(ctx context.Context, systemPrompt string) (engine.Chat, error)
}

// ImageTrigger refreshes the scene picture in the background.
type ImageTrigger interface {
	MaybeRefresh(summary string) bool
	Reset()
	Current() *models.SceneImage
	InFlight() bool
}

type Options struct {
	Prompts *engine.Prompts
	Parser  *parser.Parser
	Logger  zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is a read-only copy of the session for the presentation layer.
type Snapshot struct {
	Messages        []models.Message
	State           *models.GameState
	Phase           Phase
	View            View
	Ready           bool
	ThemeSet        bool
	GameStarted     bool
	AwaitingReply   bool
	GeneratingImage bool
	LastError       *Error
	BackgroundImage *models.SceneImage
	QuickActions    []engine.QuickAction

	// BackgroundImageURL is BackgroundImage as a data URL, empty without one.
	BackgroundImageURL string

	// CanRetryInit offers a "retry initialization" action after a failed start.
	CanRetryInit bool
	// RetryTheme is the theme to offer resubmitting after a failed submission.
	RetryTheme string
}

type Session struct {
	transport Transport
	images    ImageTrigger
	prompts   *engine.Prompts
	parser    *parser.Parser
	logger    zerolog.Logger
	now       func() time.Time

	// mu guards everything below. It is never held across a transport call.
	mu       sync.RWMutex
	chat     engine.Chat
	ready    bool
	machine  Machine
	theme    string
	messages []models.Message
	state    *models.GameState
	awaiting bool
	lastErr  *Error
	// failedTheme is the last theme whose submission failed, offered for retry.
	failedTheme string
}

func New(transport Transport, images ImageTrigger, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.With().Str("component", "session").Logger()
	if opts.Parser == nil {
		opts.Parser = parser.New(opts.Logger, false)
	}
	return &Session{
		transport: transport,
		images:    images,
		prompts:   opts.Prompts,
		parser:    opts.Parser,
		logger:    logger,
		now:       opts.Now,
	}
}

// Initialize starts a fresh conversation and fetches the model's greeting.
// On failure the session stays not ready and Initialize may be called again.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.resetLocked()
	s.ready = false
	s.chat = nil
	s.awaiting = true
	s.mu.Unlock()

	chat, reply, err := s.handshake(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting = false
	if err != nil {
		e := &Error{Kind: KindInitialization, Op: "initialize", Err: err}
		s.lastErr = e
		s.logger.Error().Err(err).Msg("failed to initialize session")
		return e
	}

	res := s.parser.Parse(reply.Text)
	if res.State != nil {
		s.logger.Info().Msg("ignoring game state in greeting")
	}
	s.chat = chat
	s.ready = true
	s.messages = append(s.messages, models.NewMessage(models.RoleModel, res.Narrative, s.now()))
	s.logger.Info().Msg("session initialized")
	return nil
}

func (s *Session) handshake(ctx context.Context) (engine.Chat, *engine.Reply, error) {
	chat, err := s.transport.StartChat(ctx, s.prompts.SystemInstruction)
	if err != nil {
		return nil, nil, err
	}
	reply, err := send(ctx, chat, s.prompts.Greeting)
	if err != nil {
		return nil, nil, err
	}
	return chat, reply, nil
}

// send performs one exchange, treating a reply without text as empty.
func send(ctx context.Context, chat engine.Chat, text string) (*engine.Reply, error) {
	reply, err := chat.Send(ctx, text)
	if err != nil {
		return nil, err
	}
	if reply == nil || strings.TrimSpace(reply.Text) == "" {
		var d engine.Diagnostics
		if reply != nil {
			d = reply.Diagnostics
		}
		return nil, &engine.EmptyReplyError{Diagnostics: d}
	}
	return reply, nil
}

// SubmitTheme starts a new adventure on the given theme. Blank input is ignored.
func (s *Session) SubmitTheme(ctx context.Context, theme string) error {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.messages = append(s.messages, models.NewMessage(models.RoleUser, theme, s.now()))
	s.awaiting = true
	s.state = nil
	s.theme = ""
	s.failedTheme = ""
	s.lastErr = nil
	s.machine.BeginTheme()
	s.images.Reset()
	chat := s.chat
	s.mu.Unlock()

	reply, err := s.sendTheme(ctx, chat, theme)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting = false
	if err != nil {
		s.failedTheme = theme
		return s.failLocked(classify("submit theme", err))
	}
	s.theme = theme
	s.machine.ThemeAccepted()
	s.processReply(reply.Text)
	return nil
}

func (s *Session) sendTheme(ctx context.Context, chat engine.Chat, theme string) (*engine.Reply, error) {
	text, err := s.prompts.ThemeMessage(theme)
	if err != nil {
		return nil, err
	}
	return send(ctx, chat, text)
}

// SendMessage sends a player turn: an answer to the clarifying questions or
// an action in play. Blank input is ignored.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.messages = append(s.messages, models.NewMessage(models.RoleUser, text, s.now()))
	s.awaiting = true
	s.lastErr = nil
	chat := s.chat
	s.mu.Unlock()

	reply, err := send(ctx, chat, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaiting = false
	if err != nil {
		return s.failLocked(classify("send message", err))
	}
	s.processReply(reply.Text)
	return nil
}

func (s *Session) failLocked(e *Error) *Error {
	s.lastErr = e
	s.logger.Error().Err(e.Err).Str("op", e.Op).Str("kind", e.Kind.String()).Msg("round-trip failed")
	return e
}

// processReply applies one model reply. Callers hold s.mu.
func (s *Session) processReply(raw string) {
	res := s.parser.Parse(raw)
	s.messages = append(s.messages, models.NewMessage(models.RoleModel, res.Narrative, s.now()))

	if res.State != nil {
		if !s.machine.PayloadReceived() {
			s.logger.Warn().Msg("game state received before a theme was set, ignoring")
			return
		}
		s.state = res.State
		if res.State.SceneSummary != "" {
			s.images.MaybeRefresh(res.State.SceneSummary)
		}
		return
	}

	switch s.machine.Phase() {
	case PhaseActive:
		// Keep the previous state; the panel still shows the last known scene.
		s.logger.Warn().Msg("no game state in reply during play, keeping previous state")
	case PhaseClarificationPending:
		s.logger.Info().Msg("clarification reply, game not started yet")
	}
}

// Reset returns the session to the theme prompt, dropping the transcript,
// the game state and the scene image. The conversation handle is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.machine.Reset()
	s.messages = nil
	s.state = nil
	s.theme = ""
	s.failedTheme = ""
	s.lastErr = nil
	s.images.Reset()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	phase := s.machine.Phase()
	snap := Snapshot{
		Messages:        append([]models.Message(nil), s.messages...),
		State:           s.state.Clone(),
		Phase:           phase,
		View:            DisplayView(s.ready, phase, s.awaiting, s.state != nil),
		Ready:           s.ready,
		ThemeSet:        s.machine.ThemeSet(),
		GameStarted:     s.machine.GameStarted(),
		AwaitingReply:   s.awaiting,
		GeneratingImage: s.images.InFlight(),
		LastError:       s.lastErr,
		BackgroundImage: s.images.Current(),
	}
	snap.BackgroundImageURL = snap.BackgroundImage.DataURL()
	if s.prompts != nil {
		snap.QuickActions = s.prompts.QuickActions
	}
	if s.lastErr != nil {
		snap.CanRetryInit = !s.ready
		if s.ready && !s.machine.ThemeSet() {
			snap.RetryTheme = s.failedTheme
		}
	}
	return snap
}

// Transcript returns the session as an exportable record.
func (s *Session) Transcript() models.Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.Transcript{
		Theme:    s.theme,
		Messages: append([]models.Message(nil), s.messages...),
		State:    s.state.Clone(),
	}
}
