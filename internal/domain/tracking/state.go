package tracking

// State is the tracking state of an entity inside one store
type State int

// Tracking states. An entity is in exactly one of them, or untracked.
const (
	StateUntracked State = iota
	StateNew
	StateDirty
	StateClean
	StateRemoved
)

// String returns the lowercase state name
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateDirty:
		return "dirty"
	case StateClean:
		return "clean"
	case StateRemoved:
		return "removed"
	default:
		return "untracked"
	}
}

// Counts is a snapshot of how many entities a store tracks per state
type Counts struct {
	New     int
	Dirty   int
	Clean   int
	Removed int
}

// Pending returns the number of entities waiting to be written
func (c Counts) Pending() int {
	return c.New + c.Dirty + c.Removed
}

// Total returns the number of tracked entities
func (c Counts) Total() int {
	return c.New + c.Dirty + c.Clean + c.Removed
}
