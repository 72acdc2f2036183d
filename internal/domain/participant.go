// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxParticipantIDLen = 64

var ErrParticipantIDEmpty = errors.New("participant id empty")

type ParticipantID string

// Role is which side of the consultation a participant is on.
type Role string

const (
	RoleConsultant Role = "consultant"
	RoleCustomer   Role = "customer"
)

type Participant struct {
	ID   ParticipantID `json:"id"`
	Role Role          `json:"role"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, role Role) (*Participant, error) {
	if len(id) == 0 {
		return nil, ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		id = id[:MaxParticipantIDLen]
	}
	return &Participant{ID: id, Role: role}, nil
}
