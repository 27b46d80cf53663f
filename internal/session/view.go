package session

// View is what the state panel shows. Exactly one applies at any time.
type View int

const (
	// ViewInitializing: the conversation is not ready yet.
	ViewInitializing View = iota
	// ViewSetTheme: prompt the player for a theme.
	ViewSetTheme
	// ViewLoading: a reply is on its way and there is no scene to show.
	ViewLoading
	// ViewAwaitingDetails: the model asked clarifying questions.
	ViewAwaitingDetails
	// ViewGameState: render the current game state.
	ViewGameState
	// ViewSceneUnavailable: in play, but the last replies carried no usable state.
	ViewSceneUnavailable
)

func (v View) String() string {
	switch v {
	case ViewInitializing:
		return "initializing"
	case ViewSetTheme:
		return "set_theme"
	case ViewLoading:
		return "loading"
	case ViewAwaitingDetails:
		return "awaiting_details"
	case ViewGameState:
		return "game_state"
	case ViewSceneUnavailable:
		return "scene_unavailable"
	default:
		return "unknown"
	}
}

type viewKey struct {
	phase    Phase
	awaiting bool
	hasState bool
}

// viewTable covers every (phase, awaiting, hasState) tuple. Tuples the
// session cannot reach (a state before play, say) still map to one view.
var viewTable = map[viewKey]View{
	{PhaseThemeNotSet, false, false}: ViewSetTheme,
	{PhaseThemeNotSet, false, true}:  ViewSetTheme,
	{PhaseThemeNotSet, true, false}:  ViewLoading,
	{PhaseThemeNotSet, true, true}:   ViewLoading,

	{PhaseClarificationPending, false, false}: ViewAwaitingDetails,
	{PhaseClarificationPending, false, true}:  ViewAwaitingDetails,
	{PhaseClarificationPending, true, false}:  ViewLoading,
	{PhaseClarificationPending, true, true}:   ViewLoading,

	{PhaseActive, false, false}: ViewSceneUnavailable,
	{PhaseActive, false, true}:  ViewGameState,
	{PhaseActive, true, false}:  ViewLoading,
	{PhaseActive, true, true}:   ViewGameState,
}

// DisplayView picks the state panel view for a session.
func DisplayView(ready bool, phase Phase, awaiting, hasState bool) View {
	if !ready {
		return ViewInitializing
	}
	v, ok := viewTable[viewKey{phase, awaiting, hasState}]
	if !ok {
		return ViewInitializing
	}
	return v
}
