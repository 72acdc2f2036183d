package app

import "github.com/astelio/consult/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what to do with a member whose send buffer is full.
type Policy interface {
	OnBackpressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy drops the frame. Kicking a participant mid-consultation would
// pause billing for both, so eviction is reserved for dead connections.
type SimplePolicy struct{}

func (SimplePolicy) OnBackpressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return DropFrame
}
