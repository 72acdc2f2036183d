package core

import (
	"context"

	"github.com/astelio/consult/internal/domain"
)

// RoleClassifier maps an identity to its side of the consultation.
// Injected so the core never depends on a specific identity scheme.
type RoleClassifier interface {
	Classify(id domain.ParticipantID) domain.Role
}

// CreditLedger is the injected balance lookup for the paying party of a room.
// Callers fall back to a configured default when the lookup fails or the
// room is unknown to the ledger.
type CreditLedger interface {
	Balance(ctx context.Context, key domain.RoomKey) (float64, error)
}
