package tracker

// Kind distinguishes single-object allocations from array-style ones.
// A block must be released with the kind it was allocated with.
type Kind uint8

const (
	KindSingle Kind = iota
	KindArray
)

// Kinds lists every partition of the bucket index in report order.
var Kinds = [...]Kind{KindSingle, KindArray}

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "non-array"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

func (k Kind) valid() bool {
	return k == KindSingle || k == KindArray
}

// State is the lifecycle state of a Tracker.
type State uint8

const (
	StateUninitialized State = iota
	StateActive
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
