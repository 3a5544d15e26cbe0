package engine

// LevelState is the lifecycle state of a level.
type LevelState uint8

const (
	// LevelEmpty holds no segment.
	LevelEmpty LevelState = iota
	// LevelOccupied holds exactly one segment.
	LevelOccupied
	// LevelMerging is taking part in an in-flight merge. Its segment, if
	// any, stays readable until the merge commits.
	LevelMerging
)

func (s LevelState) String() string {
	switch s {
	case LevelEmpty:
		return "EMPTY"
	case LevelOccupied:
		return "OCCUPIED"
	case LevelMerging:
		return "MERGING"
	default:
		return "UNKNOWN"
	}
}

type level struct {
	state LevelState
	seg   *RefCountedSegment
	// prev is the state to restore when a merge fails.
	prev LevelState
}

func (l *level) beginMerge() {
	l.prev = l.state
	l.state = LevelMerging
}

func (l *level) abortMerge() {
	if l.state == LevelMerging {
		l.state = l.prev
	}
}
