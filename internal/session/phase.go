package session

// Phase is where the conversation stands in the theme → clarification →
// play protocol.
type Phase int

const (
	// PhaseThemeNotSet: waiting for the player to name a theme.
	PhaseThemeNotSet Phase = iota
	// PhaseClarificationPending: theme accepted, no game state received yet.
	PhaseClarificationPending
	// PhaseActive: at least one game state has been received.
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseThemeNotSet:
		return "theme_not_set"
	case PhaseClarificationPending:
		return "clarification_pending"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Machine holds the current Phase. The zero value starts in PhaseThemeNotSet.
type Machine struct {
	phase Phase
}

func (m *Machine) Phase() Phase { return m.phase }

// BeginTheme starts a new theme. A theme change invalidates the previous
// game, so the phase falls back to the start until the theme is accepted.
func (m *Machine) BeginTheme() {
	m.phase = PhaseThemeNotSet
}

// ThemeAccepted records that the model answered the theme message.
func (m *Machine) ThemeAccepted() {
	m.phase = PhaseClarificationPending
}

// PayloadReceived moves a themed session into play. Before a theme is set
// there is no game to start, and the payload is ignored.
func (m *Machine) PayloadReceived() bool {
	if m.phase == PhaseThemeNotSet {
		return false
	}
	m.phase = PhaseActive
	return true
}

func (m *Machine) Reset() {
	m.phase = PhaseThemeNotSet
}

func (m *Machine) ThemeSet() bool    { return m.phase != PhaseThemeNotSet }
func (m *Machine) GameStarted() bool { return m.phase == PhaseActive }
