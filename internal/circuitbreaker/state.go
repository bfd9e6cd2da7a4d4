package circuitbreaker

type State int

const (
	// StateClosed - provider healthy, calls pass through
	StateClosed State = iota

	// StateOpen - provider skipped until the open timeout elapses
	StateOpen

	// StateHalfOpen - trial calls decide whether to close again
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
