package assetloader

// State is a session's position in the negotiation sequence.
type State int

const (
	StateCreated State = iota
	StateStarted
	StateDurationKnown
	StateCountKnown
	StateNegotiating
	StateActive
	StateError
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateDurationKnown:
		return "duration_known"
	case StateCountKnown:
		return "count_known"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further protocol events are accepted.
func (s State) Terminal() bool {
	return s == StateError || s == StateReleased
}
