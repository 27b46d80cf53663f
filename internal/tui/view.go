package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/tatianab/adventure-gm/internal/models"
	"github.com/tatianab/adventure-gm/internal/session"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87AF87"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500"))
)

func logWidth(total int) int {
	if total <= 0 {
		return 60
	}
	return int(float64(total) * 0.70)
}

func stateWidth(total int) int {
	if total <= 0 {
		return 30
	}
	return int(float64(total) * 0.27)
}

func (m model) View() string {
	mainView := lipgloss.JoinHorizontal(lipgloss.Top,
		m.viewport.View(),
		m.renderState(),
	)

	parts := []string{mainView, "\n" + m.textInput.View()}
	if e := m.snap.LastError; e != nil {
		msg := e.UserMessage()
		if hint := m.retryHint(); hint != "" {
			msg += " " + hint
		}
		parts = append(parts, errorStyle.Width(logWidth(m.width)).Render(msg))
	}
	if m.notice != "" {
		parts = append(parts, noticeStyle.Render(m.notice))
	}
	parts = append(parts, helpStyle.Render(m.helpText()))

	return "\n" + lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (m model) retryHint() string {
	switch {
	case m.snap.CanRetryInit:
		return "Press ctrl+r to retry."
	case m.snap.RetryTheme != "":
		return fmt.Sprintf("Press ctrl+r to resubmit %q.", m.snap.RetryTheme)
	default:
		return ""
	}
}

func (m model) helpText() string {
	help := "Commands: /restart, /theme <theme>, /save <name>, /copy, /quit. PgUp/PgDn scroll."
	if m.snap.GameStarted && len(m.snap.QuickActions) > 0 {
		var actions []string
		for i, a := range m.snap.QuickActions {
			actions = append(actions, fmt.Sprintf("alt+%d %s", i+1, a.Label))
		}
		help += "\nQuick actions: " + strings.Join(actions, " | ")
	}
	return help
}

func (m model) renderLog() string {
	width := max(logWidth(m.width)-2, 20)
	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		text := wordwrap.String(msg.Text, width-2)
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(userStyle.Width(width).Render("> " + text))
		default:
			b.WriteString(gameStyle.Render(text))
		}
	}
	return b.String()
}

func (m model) renderState() string {
	width := max(stateWidth(m.width), 20)
	var content string

	switch m.snap.View {
	case session.ViewInitializing:
		if m.snap.LastError != nil {
			content = titleStyle.Render("NOT CONNECTED") + "\n\nThe game master could not be reached."
		} else {
			content = m.spinner.View() + " Summoning the game master..."
		}

	case session.ViewSetTheme:
		content = titleStyle.Render("NEW ADVENTURE") + "\n\n" +
			wordwrap.String("Type a theme for your adventure and press Enter.", width-2)

	case session.ViewLoading:
		content = m.spinner.View() + " The game master is thinking..."

	case session.ViewAwaitingDetails:
		content = titleStyle.Render("SETTING UP") + "\n\n" +
			wordwrap.String("Answer the game master's questions to begin the game.", width-2)

	case session.ViewGameState:
		content = m.renderGameState(width)

	case session.ViewSceneUnavailable:
		content = titleStyle.Render("SCENE") + "\n\n" +
			wordwrap.String("Scene details are unavailable. Keep playing; they will return with the next update.", width-2)
	}

	return stateStyle.Width(width).Height(m.viewport.Height).Render(content)
}

func (m model) renderGameState(width int) string {
	st := m.snap.State
	if st == nil {
		return ""
	}
	wrap := func(s string) string { return wordwrap.String(s, width-2) }

	var b strings.Builder
	b.WriteString(titleStyle.Render("SCENE") + "\n")
	b.WriteString(wrap(orDash(st.SceneSummary)) + "\n\n")

	if st.IsEmptyStatus() {
		b.WriteString(helpStyle.Render(wrap("No player details yet.")) + "\n")
		return b.String() + m.renderImageStatus(wrap)
	}

	b.WriteString(titleStyle.Render("LOCATION") + "\n")
	b.WriteString(wrap(orDash(st.PlayerStatus.Location)) + "\n\n")

	b.WriteString(titleStyle.Render("OBJECTIVE") + "\n")
	b.WriteString(wrap(orDash(st.PlayerStatus.Objective)) + "\n\n")

	if st.PlayerStatus.Mood != "" {
		b.WriteString(titleStyle.Render("MOOD") + "\n")
		b.WriteString(wrap(st.PlayerStatus.Mood) + "\n\n")
	}

	b.WriteString(titleStyle.Render("INVENTORY") + "\n")
	if len(st.PlayerStatus.Inventory) == 0 {
		b.WriteString("(empty)\n")
	} else {
		for _, item := range st.PlayerStatus.Inventory {
			b.WriteString(wrap("- "+item) + "\n")
		}
	}

	return b.String() + m.renderImageStatus(wrap)
}

func (m model) renderImageStatus(wrap func(string) string) string {
	switch {
	case m.snap.GeneratingImage:
		return "\n" + m.spinner.View() + " Painting the scene..."
	case m.snap.BackgroundImage != nil:
		return "\n" + helpStyle.Render(wrap("Scene art: "+m.snap.BackgroundImage.Summary))
	default:
		return ""
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
