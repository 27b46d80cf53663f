package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/tatianab/adventure-gm/internal/engine"
	"github.com/tatianab/adventure-gm/internal/models"
	"github.com/tatianab/adventure-gm/internal/session"
)

// Session is the part of session.Session the UI drives.
type Session interface {
	Initialize(ctx context.Context) error
	SubmitTheme(ctx context.Context, theme string) error
	SendMessage(ctx context.Context, text string) error
	Reset()
	Snapshot() session.Snapshot
	Transcript() models.Transcript
}

type Options struct {
	// SaveDir is where /save writes transcripts.
	SaveDir string
	// ImageUpdates fires whenever the scene image changes.
	ImageUpdates <-chan struct{}
	Logger       zerolog.Logger
}

const (
	themePlaceholder  = "Enter a theme, e.g. haunted lighthouse..."
	actionPlaceholder = "What do you do?"
)

type model struct {
	session   Session
	opts      Options
	logger    zerolog.Logger
	snap      session.Snapshot
	textInput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	// pending covers the gap between dispatching a round trip and the
	// session marking itself as awaiting a reply.
	pending bool
	// content is what the viewport currently shows.
	content string
	notice  string
	width   int
	height  int
}

func NewModel(s Session, opts Options) model {
	ti := textinput.New()
	ti.Placeholder = themePlaceholder
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	vp := viewport.New(60, 20)
	// Letters must reach the text input, so only paging scrolls the transcript.
	vp.KeyMap = viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return model{
		session:   s,
		opts:      opts,
		logger:    opts.Logger.With().Str("component", "tui").Logger(),
		snap:      s.Snapshot(),
		textInput: ti,
		viewport:  vp,
		spinner:   sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.initialize(), waitForImage(m.opts.ImageUpdates))
}

type initDoneMsg struct {
	err error
}

type replyMsg struct {
	err error
}

type imageUpdatedMsg struct{}

type noticeMsg struct {
	text string
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlR:
			cmd = m.retry()
		if cmd != nil {
			m.pending = true
		}
		return m, cmd

		case tea.KeyEnter:
			return m.handleEnter()

		case tea.KeyPgUp, tea.KeyPgDown:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if i, ok := quickActionIndex(msg); ok {
			m.applyQuickAction(i)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = logWidth(msg.Width)
		m.viewport.Height = max(msg.Height-8, 3)
		m.textInput.Width = max(logWidth(msg.Width)-4, 10)
		m.content = ""
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case initDoneMsg:
		m.pending = false
		m.refresh()
		return m, nil

	case replyMsg:
		m.pending = false
		if errors.Is(msg.err, session.ErrNotReady) {
			m.notice = "The game master is not connected yet."
		}
		m.refresh()
		return m, nil

	case imageUpdatedMsg:
		m.refresh()
		return m, waitForImage(m.opts.ImageUpdates)

	case noticeMsg:
		m.notice = msg.text
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}
	if strings.HasPrefix(input, "/") {
		m.textInput.Reset()
		return m.runCommand(input)
	}
	if !m.snap.Ready || m.busy() {
		return m, nil
	}

	m.textInput.Reset()
	m.notice = ""
	m.pending = true
	if !m.snap.ThemeSet {
		return m, m.submitTheme(input)
	}
	return m, m.sendMessage(input)
}

func (m model) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	m.notice = ""

	switch name {
	case "/quit":
		return m, tea.Quit

	case "/restart":
		if m.busy() {
			m.notice = "Wait for the game master to finish first."
			return m, nil
		}
		m.session.Reset()
		m.refresh()
		return m, nil

	case "/theme":
		if arg == "" {
			m.notice = "Usage: /theme <theme>"
			return m, nil
		}
		if !m.snap.Ready || m.busy() {
			return m, nil
		}
		m.pending = true
		return m, m.submitTheme(arg)

	case "/save":
		if arg == "" {
			arg = "current"
		}
		return m, m.save(arg)

	case "/copy":
		return m, copyNarrative(lastNarrative(m.snap.Messages))

	default:
		m.notice = "Unknown command " + name
		return m, nil
	}
}

// retry repeats whatever failed last: starting the conversation or
// submitting the theme.
func (m model) retry() tea.Cmd {
	if m.snap.LastError == nil || m.busy() {
		return nil
	}
	if m.snap.CanRetryInit {
		return m.initialize()
	}
	if m.snap.RetryTheme != "" {
		return m.submitTheme(m.snap.RetryTheme)
	}
	return nil
}

// busy reports whether a round trip is outstanding.
func (m model) busy() bool {
	return m.pending || m.snap.AwaitingReply
}

// quickActionIndex maps alt+1 through alt+9 to an index.
func quickActionIndex(msg tea.KeyMsg) (int, bool) {
	if !msg.Alt || msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return 0, false
	}
	r := msg.Runes[0]
	if r < '1' || r > '9' {
		return 0, false
	}
	return int(r - '1'), true
}

func (m *model) applyQuickAction(i int) {
	if !m.snap.GameStarted || i >= len(m.snap.QuickActions) {
		return
	}
	action := m.snap.QuickActions[i]
	m.textInput.SetValue(engine.ApplyQuickAction(action, m.textInput.Value()))
	m.textInput.CursorEnd()
	if action.Placeholder != "" {
		m.textInput.Placeholder = action.Placeholder
	}
}

// refresh pulls a new snapshot and updates everything derived from it.
func (m *model) refresh() {
	m.snap = m.session.Snapshot()

	if m.snap.ThemeSet {
		if m.textInput.Placeholder == themePlaceholder {
			m.textInput.Placeholder = actionPlaceholder
		}
	} else {
		m.textInput.Placeholder = themePlaceholder
	}

	content := m.renderLog()
	if content != m.content {
		m.content = content
		m.viewport.SetContent(content)
		m.viewport.GotoBottom()
	}
}

func (m model) initialize() tea.Cmd {
	return func() tea.Msg {
		return initDoneMsg{m.session.Initialize(context.Background())}
	}
}

func (m model) submitTheme(theme string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{m.session.SubmitTheme(context.Background(), theme)}
	}
}

func (m model) sendMessage(text string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{m.session.SendMessage(context.Background(), text)}
	}
}

func waitForImage(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return imageUpdatedMsg{}
	}
}

func (m model) save(name string) tea.Cmd {
	transcript := m.session.Transcript()
	dir := m.opts.SaveDir
	logger := m.logger
	return func() tea.Msg {
		path, err := transcript.Export(dir, name)
		if err != nil {
			logger.Error().Err(err).Str("name", name).Msg("failed to save transcript")
			return noticeMsg{"Save failed: " + err.Error()}
		}
		logger.Info().Str("path", path).Msg("saved transcript")
		return noticeMsg{"Saved transcript to " + path}
	}
}

func copyNarrative(text string) tea.Cmd {
	return func() tea.Msg {
		if text == "" {
			return noticeMsg{"Nothing to copy yet."}
		}
		if err := clipboard.WriteAll(text); err != nil {
			return noticeMsg{"Copy failed: " + err.Error()}
		}
		return noticeMsg{"Copied the last narration to the clipboard."}
	}
}

func lastNarrative(msgs []models.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleModel {
			return msgs[i].Text
		}
	}
	return ""
}

func Run(s Session, opts Options) error {
	p := tea.NewProgram(NewModel(s, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
