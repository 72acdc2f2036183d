package domain

// RoomKey groups exactly two paired participants and their shared session state.
type RoomKey string

// Status is the lifecycle state of a room's session.
type Status int

const (
	StatusEmpty Status = iota
	StatusWaitingForPeer
	StatusActive
	StatusPaused
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusWaitingForPeer:
		return "waiting_for_peer"
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}
