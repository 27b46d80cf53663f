package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/adventure-gm/internal/engine"
	"github.com/tatianab/adventure-gm/internal/models"
	"github.com/tatianab/adventure-gm/internal/parser"
	"github.com/tatianab/adventure-gm/internal/scene"
)

type fakeResponse struct {
	text string
	err  error
}

// fakeChat replays scripted responses in order.
type fakeChat struct {
	mu        sync.Mutex
	responses []fakeResponse
	sent      []string
	// gate, if set, holds each Send until a value is received.
	gate chan struct{}
}

func (c *fakeChat) Send(ctx context.Context, text string) (*engine.Reply, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, text)
	if len(c.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := c.responses[0]
	c.responses = c.responses[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &engine.Reply{Text: r.text}, nil
}

func (c *fakeChat) script(rs ...fakeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, rs...)
}

func (c *fakeChat) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeTransport struct {
	chat    *fakeChat
	err     error
	prompts []string
}

func (t *fakeTransport) StartChat(ctx context.Context, systemPrompt string) (engine.Chat, error) {
	t.prompts = append(t.prompts, systemPrompt)
	if t.err != nil {
		return nil, t.err
	}
	return t.chat, nil
}

// recordingTrigger stands in for the scene trigger without goroutines.
type recordingTrigger struct {
	refreshes []string
	resets    int
}

func (r *recordingTrigger) MaybeRefresh(summary string) bool {
	r.refreshes = append(r.refreshes, summary)
	return true
}
func (r *recordingTrigger) Reset() { r.resets++ }
func (r *recordingTrigger) Current() *models.SceneImage { return nil }
func (r *recordingTrigger) InFlight() bool { return false }

// countingGenerator counts image requests that reach the image service.
type countingGenerator struct {
	mu      sync.Mutex
	prompts []string
}

func (g *countingGenerator) GenerateImage(ctx context.Context, prompt string) (*models.SceneImage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return &models.SceneImage{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}, nil
}

func (g *countingGenerator) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

const greeting = "Welcome, adventurers! What should our story be about?"

var lighthouseState = models.GameState{
	SceneSummary: "A fog-wrapped lighthouse stands on a rocky point.",
	PlayerStatus: models.PlayerStatus{
		Location:  "Lighthouse base",
		Inventory: []string{"lantern"},
	},
}

func testPrompts(t *testing.T) *engine.Prompts {
	t.Helper()
	p, err := engine.LoadPrompts()
	require.NoError(t, err)
	return p
}

func newTestSession(t *testing.T, images ImageTrigger) (*Session, *fakeTransport) {
	t.Helper()
	chat := &fakeChat{}
	tr := &fakeTransport{chat: chat}
	clock := time.Date(2024, 10, 31, 20, 0, 0, 0, time.UTC)
	s := New(tr, images, Options{
		Prompts: testPrompts(t),
		Parser:  parser.New(zerolog.Nop(), false),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return clock },
	})
	return s, tr
}

// readySession returns an initialized session that has already received the greeting.
func readySession(t *testing.T, images ImageTrigger) (*Session, *fakeChat) {
	t.Helper()
	s, tr := newTestSession(t, images)
	tr.chat.script(fakeResponse{text: greeting})
	require.NoError(t, s.Initialize(context.Background()))
	return s, tr.chat
}

// activeSession returns a session that is in play with lighthouseState.
func activeSession(t *testing.T, images ImageTrigger) (*Session, *fakeChat) {
	t.Helper()
	s, chat := readySession(t, images)
	chat.script(
		fakeResponse{text: "Spooky! How many players?"},
		fakeResponse{text: parser.Format("The fog rolls in.", lighthouseState)},
	)
	ctx := context.Background()
	require.NoError(t, s.SubmitTheme(ctx, "haunted lighthouse"))
	require.NoError(t, s.SendMessage(ctx, "two players, spooky tone"))
	require.Equal(t, PhaseActive, s.Snapshot().Phase)
	return s, chat
}

func TestInitialize(t *testing.T) {
	s, tr := newTestSession(t, &recordingTrigger{})

	snap := s.Snapshot()
	assert.False(t, snap.Ready)
	assert.Equal(t, ViewInitializing, snap.View)

	tr.chat.script(fakeResponse{text: "  " + greeting + "\n"})
	require.NoError(t, s.Initialize(context.Background()))

	snap = s.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, PhaseThemeNotSet, snap.Phase)
	assert.Equal(t, ViewSetTheme, snap.View)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, models.RoleModel, snap.Messages[0].Role)
	assert.Equal(t, greeting, snap.Messages[0].Text)
	assert.Nil(t, snap.LastError)

	require.Len(t, tr.prompts, 1)
	assert.Contains(t, tr.prompts[0], "```json")
	assert.Equal(t, []string{testPrompts(t).Greeting}, tr.chat.sentMessages())
}

func TestInitializeMissingKeyThenRetry(t *testing.T) {
	s, tr := newTestSession(t, &recordingTrigger{})
	tr.err = engine.ErrMissingAPIKey

	err := s.Initialize(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInitialization, serr.Kind)
	assert.ErrorIs(t, err, engine.ErrMissingAPIKey)

	snap := s.Snapshot()
	assert.False(t, snap.Ready)
	assert.True(t, snap.CanRetryInit)
	assert.False(t, snap.AwaitingReply)
	require.NotNil(t, snap.LastError)
	assert.Contains(t, snap.LastError.UserMessage(), "GEMINI_API_KEY")

	// Retrying after the key is fixed succeeds.
	tr.err = nil
	tr.chat.script(fakeResponse{text: greeting})
	require.NoError(t, s.Initialize(context.Background()))

	snap = s.Snapshot()
	assert.True(t, snap.Ready)
	assert.Nil(t, snap.LastError)
	assert.False(t, snap.CanRetryInit)
	assert.Len(t, snap.Messages, 1)
}

func TestInitializeEmptyGreeting(t *testing.T) {
	s, tr := newTestSession(t, &recordingTrigger{})
	tr.chat.script(fakeResponse{text: "   "})

	err := s.Initialize(context.Background())
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInitialization, serr.Kind)
	assert.Contains(t, serr.UserMessage(), "safety_ratings")
	assert.False(t, s.Snapshot().Ready)
}

func TestSubmitThemeClarification(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := readySession(t, images)
	chat.script(fakeResponse{text: "Spooky! How many players, and should it be scary or silly?"})

	require.NoError(t, s.SubmitTheme(context.Background(), "haunted lighthouse"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseClarificationPending, snap.Phase)
	assert.Nil(t, snap.State)
	assert.True(t, snap.ThemeSet)
	assert.False(t, snap.GameStarted)
	assert.False(t, snap.AwaitingReply)
	assert.Equal(t, ViewAwaitingDetails, snap.View)

	// The theme exchange adds exactly the user's theme and the model's question.
	require.Len(t, snap.Messages, 3)
	themeMsgs := snap.Messages[1:]
	assert.Equal(t, models.RoleUser, themeMsgs[0].Role)
	assert.Equal(t, "haunted lighthouse", themeMsgs[0].Text)
	assert.Equal(t, models.RoleModel, themeMsgs[1].Role)

	sent := chat.sentMessages()
	assert.Equal(t, "The theme of the adventure is: haunted lighthouse", sent[len(sent)-1])
	assert.Empty(t, images.refreshes)
	// Once for Initialize, once for the theme.
	assert.Equal(t, 2, images.resets)
}

func TestClarificationAnswerStartsGame(t *testing.T) {
	gen := &countingGenerator{}
	trigger := scene.NewTrigger(gen, scene.Options{Logger: zerolog.Nop()})
	s, chat := readySession(t, trigger)
	ctx := context.Background()

	chat.script(fakeResponse{text: "How many players?"})
	require.NoError(t, s.SubmitTheme(ctx, "haunted lighthouse"))

	chat.script(fakeResponse{text: parser.Format("The adventure begins at the foot of the lighthouse.", lighthouseState)})
	require.NoError(t, s.SendMessage(ctx, "two players, spooky tone"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.True(t, snap.GameStarted)
	require.NotNil(t, snap.State)
	assert.Equal(t, lighthouseState, *snap.State)
	assert.Equal(t, ViewGameState, snap.View)
	assert.Equal(t, "The adventure begins at the foot of the lighthouse.", snap.Messages[len(snap.Messages)-1].Text)

	trigger.Wait()
	assert.Equal(t, 1, gen.count())
	require.NotNil(t, trigger.Current())
	assert.Equal(t, lighthouseState.SceneSummary, trigger.Current().Summary)
	snap = s.Snapshot()
	assert.NotNil(t, snap.BackgroundImage)
	assert.Equal(t, "data:image/jpeg;base64,/9g=", snap.BackgroundImageURL)
}

func TestMistypedFieldStillStartsGame(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := readySession(t, images)
	chat.script(
		fakeResponse{text: "How many players?"},
		fakeResponse{text: "The fog lifts.\n```json\n{\"sceneSummary\": \"Fog\", \"playerStatus\": {\"inventory\": \"lantern\", \"location\": \"Pier\"}}\n```"},
	)
	ctx := context.Background()
	require.NoError(t, s.SubmitTheme(ctx, "haunted lighthouse"))
	require.NoError(t, s.SendMessage(ctx, "just me"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	require.NotNil(t, snap.State)
	assert.Equal(t, "Pier", snap.State.PlayerStatus.Location)
	assert.Empty(t, snap.State.PlayerStatus.Inventory)
	assert.Equal(t, "The fog lifts.", snap.Messages[len(snap.Messages)-1].Text)
	assert.Equal(t, []string{"Fog"}, images.refreshes)
}

func TestPayloadWithThemeReplyGoesActive(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := readySession(t, images)
	chat.script(fakeResponse{text: parser.Format("Let's begin right away!", lighthouseState)})

	require.NoError(t, s.SubmitTheme(context.Background(), "haunted lighthouse"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.NotNil(t, snap.State)
	assert.Equal(t, []string{lighthouseState.SceneSummary}, images.refreshes)
}

func TestEmptySceneSummarySkipsImage(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := readySession(t, images)
	chat.script(fakeResponse{text: "Hm?"}, fakeResponse{text: parser.Format("Ok.", models.GameState{
		PlayerStatus: models.PlayerStatus{Mood: "calm"},
	})})

	ctx := context.Background()
	require.NoError(t, s.SubmitTheme(ctx, "picnic"))
	require.NoError(t, s.SendMessage(ctx, "just me"))

	assert.Equal(t, PhaseActive, s.Snapshot().Phase)
	assert.Empty(t, images.refreshes)
}

func TestBlankInputIsNoop(t *testing.T) {
	s, chat := readySession(t, &recordingTrigger{})
	before := len(chat.sentMessages())

	assert.NoError(t, s.SubmitTheme(context.Background(), "   "))
	assert.NoError(t, s.SendMessage(context.Background(), "\n\t"))

	assert.Len(t, s.Snapshot().Messages, 1)
	assert.Len(t, chat.sentMessages(), before)
}

func TestSendMessageBeforeInitialize(t *testing.T) {
	s, _ := newTestSession(t, &recordingTrigger{})
	assert.ErrorIs(t, s.SendMessage(context.Background(), "hello"), ErrNotReady)
	assert.ErrorIs(t, s.SubmitTheme(context.Background(), "pirates"), ErrNotReady)
	assert.Empty(t, s.Snapshot().Messages)
}

func TestSubmitThemeTransportFailure(t *testing.T) {
	s, chat := readySession(t, &recordingTrigger{})
	chat.script(fakeResponse{err: errors.New("connection reset")})

	err := s.SubmitTheme(context.Background(), "space pirates")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindTransport, serr.Kind)

	snap := s.Snapshot()
	assert.False(t, snap.ThemeSet)
	assert.False(t, snap.AwaitingReply)
	assert.Equal(t, PhaseThemeNotSet, snap.Phase)
	assert.Equal(t, "space pirates", snap.RetryTheme)
	assert.False(t, snap.CanRetryInit)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, models.RoleUser, snap.Messages[1].Role)
	assert.Contains(t, snap.LastError.UserMessage(), "connection reset")
}

func TestSendMessageEmptyReply(t *testing.T) {
	s, chat := activeSession(t, &recordingTrigger{})
	before := s.Snapshot()
	chat.script(fakeResponse{err: &engine.EmptyReplyError{Diagnostics: engine.Diagnostics{FinishReason: "SAFETY"}}})

	err := s.SendMessage(context.Background(), "we open the door")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindEmptyReply, serr.Kind)

	snap := s.Snapshot()
	assert.False(t, snap.AwaitingReply)
	require.Len(t, snap.Messages, len(before.Messages)+1)
	assert.Equal(t, models.RoleUser, snap.Messages[len(snap.Messages)-1].Role)
	assert.Contains(t, snap.LastError.UserMessage(), "finish_reason=SAFETY")
	assert.Contains(t, snap.LastError.UserMessage(), "safety_ratings")

	// Errors during play keep history and game state.
	assert.Equal(t, before.State, snap.State)
	assert.Equal(t, PhaseActive, snap.Phase)
	assert.Empty(t, snap.RetryTheme)
}

func TestSendMessageBlankReplyIsEmptyReply(t *testing.T) {
	s, chat := activeSession(t, &recordingTrigger{})
	chat.script(fakeResponse{text: " \n "})

	err := s.SendMessage(context.Background(), "look")
	var empty *engine.EmptyReplyError
	assert.ErrorAs(t, err, &empty)
}

func TestSendMessageInvalidKey(t *testing.T) {
	s, chat := readySession(t, &recordingTrigger{})
	chat.script(fakeResponse{err: engine.ErrInvalidAPIKey})

	err := s.SendMessage(context.Background(), "hello")
	var serr *Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, KindInvalidKey, serr.Kind)
}

func TestMissingPayloadDuringPlayKeepsState(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := activeSession(t, images)
	chat.script(
		fakeResponse{text: "The wind howls, but nothing else happens."},
		fakeResponse{text: "Broken.\n```json\n{\"sceneSummary\": oops}\n```"},
	)
	ctx := context.Background()

	require.NoError(t, s.SendMessage(ctx, "we wait"))
	snap := s.Snapshot()
	assert.Equal(t, PhaseActive, snap.Phase)
	require.NotNil(t, snap.State)
	assert.Equal(t, lighthouseState, *snap.State)
	assert.Equal(t, ViewGameState, snap.View)

	require.NoError(t, s.SendMessage(ctx, "we wait more"))
	snap = s.Snapshot()
	assert.Equal(t, lighthouseState, *snap.State)
	assert.Contains(t, snap.Messages[len(snap.Messages)-1].Text, "```json")
	assert.Len(t, images.refreshes, 1)
}

func TestResetSession(t *testing.T) {
	images := &recordingTrigger{}
	s, _ := activeSession(t, images)
	resets := images.resets

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, PhaseThemeNotSet, snap.Phase)
	assert.Empty(t, snap.Messages)
	assert.Nil(t, snap.State)
	assert.Nil(t, snap.LastError)
	assert.True(t, snap.Ready)
	assert.Equal(t, ViewSetTheme, snap.View)
	assert.Equal(t, resets+1, images.resets)
}

func TestNewThemeDuringPlayClearsGame(t *testing.T) {
	images := &recordingTrigger{}
	s, chat := activeSession(t, images)
	chat.script(fakeResponse{text: "Ooh, pirates! How many sailors?"})

	require.NoError(t, s.SubmitTheme(context.Background(), "pirate treasure"))

	snap := s.Snapshot()
	assert.Equal(t, PhaseClarificationPending, snap.Phase)
	assert.Nil(t, snap.State)
	assert.False(t, snap.GameStarted)
	assert.Equal(t, "pirate treasure", s.Transcript().Theme)
}

func TestSnapshotWhileAwaitingReply(t *testing.T) {
	s, chat := readySession(t, &recordingTrigger{})
	chat.gate = make(chan struct{})
	chat.script(fakeResponse{text: "How many players?"})

	done := make(chan error, 1)
	go func() { done <- s.SubmitTheme(context.Background(), "haunted lighthouse") }()

	require.Eventually(t, func() bool { return s.Snapshot().AwaitingReply }, time.Second, time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, ViewLoading, snap.View)
	assert.Nil(t, snap.State)

	chat.gate <- struct{}{}
	require.NoError(t, <-done)
	assert.False(t, s.Snapshot().AwaitingReply)
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := activeSession(t, &recordingTrigger{})

	snap := s.Snapshot()
	snap.Messages[0].Text = "changed"
	snap.State.PlayerStatus.Inventory[0] = "sword"

	again := s.Snapshot()
	assert.Equal(t, greeting, again.Messages[0].Text)
	assert.Equal(t, "lantern", again.State.PlayerStatus.Inventory[0])
}

func TestTranscript(t *testing.T) {
	s, _ := activeSession(t, &recordingTrigger{})

	tr := s.Transcript()
	assert.Equal(t, "haunted lighthouse", tr.Theme)
	assert.Len(t, tr.Messages, 5)
	require.NotNil(t, tr.State)
	assert.Equal(t, "Lighthouse base", tr.State.PlayerStatus.Location)
}
