package core

import "github.com/astelio/consult/internal/domain"

// Frame is a raw outbound payload (JSON-encoded notification).
type Frame []byte

type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Participant
	Signal() SignalConnection
}

// PublishResult reports delivery stats/backpressure to the lifecycle controller.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID   domain.ParticipantID `json:"id"`
	Role domain.Role          `json:"role"`
}

// RoomService is the transport multicast primitive for one room.
// It owns the membership set but never touches session or billing state.
type RoomService interface {
	Key() domain.RoomKey
	MemberCount() int
	MembersSnapshot() []MemberDTO

	AddMember(sid SessionID, ms MemberSession)
	RemoveMember(sid SessionID)

	// Broadcast delivers to every member, sender included.
	Broadcast(data Frame) PublishResult
	// SendExcept delivers to every member but from.
	SendExcept(from SessionID, data Frame) PublishResult
	SendTo(sid SessionID, data Frame) error
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	MemberCount int            `json:"member_count"`
}

type RoomFactory interface {
	GetOrCreate(key domain.RoomKey) RoomService
	Get(key domain.RoomKey) (RoomService, bool)
	List() []RoomInfo
	StopRoom(key domain.RoomKey)
}
