package chat

// Phase is the coarse mode of the visitor experience.
type Phase int

const (
	PhaseLanding Phase = iota
	PhaseShare
	PhaseConversation
)

func (p Phase) String() string {
	switch p {
	case PhaseShare:
		return "share"
	case PhaseConversation:
		return "conversation"
	default:
		return "landing"
	}
}

// StateMachine tracks the visitor phase and the active session path.
// All transitions are explicit; there are no timers and no implicit
// moves. ActivePath is non-empty exactly while the phase is Share or
// Conversation.
type StateMachine struct {
	phase      Phase
	activePath string
}

// NewStateMachine starts the machine from an explicit activation path.
// A path that resolves to a session identity starts in Conversation,
// anything else starts in Landing.
func NewStateMachine(activationPath string) *StateMachine {
	if _, ok := ResolveIdentity(activationPath); ok {
		return &StateMachine{phase: PhaseConversation, activePath: activationPath}
	}
	return &StateMachine{phase: PhaseLanding}
}

// Phase returns the current phase. Unmapped values render as Landing.
func (m *StateMachine) Phase() Phase {
	switch m.phase {
	case PhaseShare, PhaseConversation:
		return m.phase
	default:
		return PhaseLanding
	}
}

// ActivePath returns the session path the machine holds, empty in
// Landing.
func (m *StateMachine) ActivePath() string {
	return m.activePath
}

// UploadSucceeded moves Landing or Share into Share holding path. A
// repeat upload replaces the stored path; the last write wins.
func (m *StateMachine) UploadSucceeded(path string) {
	switch m.Phase() {
	case PhaseLanding, PhaseShare:
		m.phase = PhaseShare
		m.activePath = path
	}
}

// StartOver resets Share back to Landing and clears the stored path.
// It has no effect in any other phase.
func (m *StateMachine) StartOver() {
	if m.Phase() == PhaseShare {
		m.phase = PhaseLanding
		m.activePath = ""
	}
}
