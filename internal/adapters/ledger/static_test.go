package ledger

import (
	"context"
	"testing"

	"github.com/astelio/consult/internal/domain"
)

func TestStaticBalance(t *testing.T) {
	s := NewStatic(42.5)

	for _, key := range []domain.RoomKey{"room-a", "room-b", ""} {
		got, err := s.Balance(context.Background(), key)
		if err != nil {
			t.Fatalf("Balance(%q): %v", key, err)
		}
		if got != 42.5 {
			t.Errorf("Balance(%q) = %v, want 42.5", key, got)
		}
	}
}
