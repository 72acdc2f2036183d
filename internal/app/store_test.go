package app_test

import (
	"testing"
	"time"

	"github.com/astelio/consult/internal/app"
	"github.com/astelio/consult/internal/domain"
)

func TestSessionStoreDefaultRate(t *testing.T) {
	store := app.NewSessionStore(0.5)

	sess := store.GetOrCreate("room-a", 0)
	if sess.Rate != 0.5 {
		t.Fatalf("rate = %v, want default 0.5", sess.Rate)
	}

	sess = store.GetOrCreate("room-b", -1)
	if sess.Rate != 0.5 {
		t.Fatalf("rate = %v, want default 0.5 for negative input", sess.Rate)
	}
}

func TestSessionStoreRateImmutableAfterCreate(t *testing.T) {
	store := app.NewSessionStore(0.5)

	first := store.GetOrCreate("room-a", 2.0)
	second := store.GetOrCreate("room-a", 9.0)

	if first != second {
		t.Fatal("same key must return the same session")
	}
	if second.Rate != 2.0 {
		t.Fatalf("rate = %v, want 2.0 fixed at creation", second.Rate)
	}
}

func TestSessionStoreDeleteIdempotent(t *testing.T) {
	store := app.NewSessionStore(0.5)
	store.GetOrCreate("room-a", 0)

	store.Delete("room-a")
	store.Delete("room-a")
	store.Delete("never-existed")

	if _, ok := store.Get("room-a"); ok {
		t.Fatal("session still present after delete")
	}
	if n := store.Len(); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
}

func TestSessionSnapshotWhilePaused(t *testing.T) {
	store := app.NewSessionStore(0.5)
	sess := store.GetOrCreate("room-a", 0)
	sess.PausedElapsed = 42 * time.Second
	sess.Status = domain.StatusPaused

	elapsed, _ := sess.Snapshot(time.Now())
	if elapsed != 42 {
		t.Fatalf("elapsed = %d, want frozen 42", elapsed)
	}
}

func TestHistoryOrderAndIsolation(t *testing.T) {
	h := app.NewHistory()
	for _, text := range []string{"one", "two", "three"} {
		h.Append("room-a", domain.Message{Text: text, Sender: domain.RoleCustomer})
	}

	got := h.Messages("room-a")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Text != want {
			t.Errorf("messages[%d] = %q, want %q", i, got[i].Text, want)
		}
	}

	// Mutating the returned slice must not touch the log.
	got[0].Text = "tampered"
	if h.Messages("room-a")[0].Text != "one" {
		t.Fatal("Messages must return a copy")
	}

	if msgs := h.Messages("room-b"); msgs != nil {
		t.Fatalf("unknown room = %v, want nil", msgs)
	}
}

func TestHistoryClear(t *testing.T) {
	h := app.NewHistory()
	h.Append("room-a", domain.Message{Text: "hello"})
	h.Clear("room-a")
	h.Clear("room-a")

	if msgs := h.Messages("room-a"); msgs != nil {
		t.Fatalf("after clear = %v, want nil", msgs)
	}
}

func TestPrefixClassifier(t *testing.T) {
	cases := []struct {
		prefix string
		id     string
		want   domain.Role
	}{
		{"", "consultant_jane", domain.RoleConsultant},
		{"", "jane", domain.RoleCustomer},
		{"", "xconsultant_jane", domain.RoleCustomer},
		{"", "", domain.RoleCustomer},
		{"expert:", "expert:bob", domain.RoleConsultant},
		{"expert:", "consultant_bob", domain.RoleCustomer},
	}
	for _, tc := range cases {
		c := app.NewPrefixClassifier(tc.prefix)
		if got := c.Classify(domain.ParticipantID(tc.id)); got != tc.want {
			t.Errorf("Classify(%q) with prefix %q = %v, want %v", tc.id, tc.prefix, got, tc.want)
		}
	}
}
