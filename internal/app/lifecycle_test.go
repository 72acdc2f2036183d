package app

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astelio/consult/internal/core"
	"github.com/astelio/consult/internal/domain"
)

const testRoom = domain.RoomKey("consult-42")

func newControllerFixture(t *testing.T, credit float64) (*Controller, *fakeClock) {
	t.Helper()
	rooms := NewRoomManager()
	clk := newFakeClock()
	m := NewMeter(fixedLedger{balance: credit}, rooms, time.Hour, credit)
	m.now = clk.Now

	c := &Controller{
		Registry: NewRegistry(NewPrefixClassifier("")),
		Rooms:    rooms,
		Sessions: NewSessionStore(0.5),
		History:  NewHistory(),
		Meter:    m,
		Policy:   SimplePolicy{},
	}
	return c, clk
}

// connect binds a fake transport connection for sid, as the ws adapter would.
func connect(c *Controller, sid string) *fakeConn {
	conn := &fakeConn{}
	p, _ := c.Registry.GetOrCreateParticipant(core.SessionID(sid))
	c.Registry.BindSignal(core.SessionID(sid), core.NewMemberSession(p, conn), nil)
	return conn
}

func countOfType(evts []map[string]any, typ string) int {
	n := 0
	for _, e := range evts {
		if e["type"] == typ {
			n++
		}
	}
	return n
}

func TestJoinGatingExactlyTwoParties(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	evts, ok := lastOfType(connA.events(t), TypeChatEnabled)
	require.True(t, ok)
	assert.Equal(t, false, evts["enabled"], "a lone participant must not get chat enabled")

	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	for _, conn := range []*fakeConn{connA, connB} {
		e, ok := lastOfType(conn.events(t), TypeChatEnabled)
		require.True(t, ok)
		assert.Equal(t, true, e["enabled"])
	}

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	_, billing := sess.Snapshot(c.Meter.Now())
	assert.Zero(t, billing.CustomerAmount)
}

func TestJoinAnnouncesRole(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	joined, ok := lastOfType(connA.events(t), TypeJoined)
	require.True(t, ok)
	assert.Equal(t, string(domain.RoleCustomer), joined["role"])

	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	joined, ok = lastOfType(connA.events(t), TypeJoined)
	require.True(t, ok)
	assert.Equal(t, string(domain.RoleConsultant), joined["role"])

	joined, ok = lastOfType(connB.events(t), TypeJoined)
	require.True(t, ok)
	assert.Equal(t, string(domain.RoleConsultant), joined["role"])
}

func TestJoinSendsBillingSnapshotToJoiner(t *testing.T) {
	c, clk := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 1.0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	clk.Advance(12 * time.Second)
	require.True(t, c.Meter.tick(sess.tickCtx, testRoom, sess))

	// Reconnect: the rejoining participant alone gets the current totals.
	c.Disconnect("customer_a")
	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	evts := connA.events(t)
	timer, ok := lastOfType(evts, TypeTimerUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 12, timer["elapsed"])
	billing, ok := lastOfType(evts, TypeBillingUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 12.0, billing["customer_amount"])
}

func TestRateFixedAtFirstJoin(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 2.5)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 9.0)

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	assert.Equal(t, 2.5, sess.Rate)
}

func TestHistoryReplayOrdering(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	for _, text := range []string{"A", "B", "C"} {
		c.Message("customer_a", text)
	}

	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)
	c.Message("customer_a", "D")

	evts := connB.events(t)
	replayIdx := -1
	for i, e := range evts {
		if e["type"] == TypePreviousMessages {
			replayIdx = i
			msgs := e["messages"].([]any)
			require.Len(t, msgs, 3)
			for j, want := range []string{"A", "B", "C"} {
				assert.Equal(t, want, msgs[j].(map[string]any)["text"])
			}
		}
	}
	require.GreaterOrEqual(t, replayIdx, 0, "joiner must receive the replay")

	for i, e := range evts {
		if e["type"] == TypeChatMessage {
			assert.Greater(t, i, replayIdx, "live messages must follow the replay")
			assert.Equal(t, "D", e["text"])
		}
	}
}

func TestMessageRelayAndPersistence(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	// Occupancy 1: chat_enabled is false, yet the relay gate is >= 1, so a
	// lone participant's message is persisted and echoed back.
	c.Message("customer_a", "anyone there?")

	msg, ok := lastOfType(connA.events(t), TypeChatMessage)
	require.True(t, ok)
	assert.Equal(t, "anyone there?", msg["text"])
	assert.Equal(t, string(domain.RoleCustomer), msg["sender"])
	require.Len(t, c.History.Messages(testRoom), 1)
}

func TestMessageFromUnknownSenderDroppedSilently(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	c.Message("ghost", "boo")
	assert.Empty(t, c.History.Messages(testRoom))
}

func TestEmptyMessageIgnored(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	c.Message("customer_a", "")
	assert.Empty(t, c.History.Messages(testRoom))
}

func TestPauseResumeFlow(t *testing.T) {
	c, clk := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	clk.Advance(7 * time.Second)
	c.Pause(testRoom, "coffee break")

	paused, ok := lastOfType(connA.events(t), TypeChatPaused)
	require.True(t, ok)
	assert.Equal(t, "coffee break", paused["reason"])

	clk.Advance(300 * time.Second)
	c.Resume(testRoom)

	_, ok = lastOfType(connA.events(t), TypeChatResumed)
	require.True(t, ok)

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	elapsed, _ := sess.Snapshot(clk.Now())
	assert.EqualValues(t, 7, elapsed, "paused interval must not count")
}

func TestResumeOnNonPausedRoomIsNoop(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	c.Resume(testRoom)
	assert.Zero(t, countOfType(connA.events(t), TypeChatResumed))
}

func TestLifecycleEventsOnUnknownRoomAreNoops(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	c.Pause("nowhere", "x")
	c.Resume("nowhere")
	c.End("customer_a", "nowhere")
	c.EndWithoutCredits("customer_a", "nowhere")
	assert.Zero(t, c.Sessions.Len())
}

func TestEndBroadcastsDistinctSystemMessages(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	c.End("customer_a", testRoom)

	sysA, ok := lastOfType(connA.events(t), TypeSystemMessage)
	require.True(t, ok)
	assert.Equal(t, msgEndedByYou, sysA["text"])

	sysB, ok := lastOfType(connB.events(t), TypeSystemMessage)
	require.True(t, ok)
	assert.Equal(t, msgEndedByPeer, sysB["text"])

	for _, conn := range []*fakeConn{connA, connB} {
		ended, ok := lastOfType(conn.events(t), TypeChatEnded)
		require.True(t, ok)
		assert.Equal(t, true, ended["redirect"])
	}
}

func TestEndWithoutCreditsMentionsNoBillingChanges(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	c.EndWithoutCredits("consultant_b", testRoom)

	for _, conn := range []*fakeConn{connA, connB} {
		sys, ok := lastOfType(conn.events(t), TypeSystemMessage)
		require.True(t, ok)
		assert.Equal(t, msgEndedNoCredits, sys["text"])
		ended, ok := lastOfType(conn.events(t), TypeChatEnded)
		require.True(t, ok)
		assert.Equal(t, true, ended["redirect"])
	}
}

func TestTeardownCompleteness(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)
	c.Message("customer_a", "hello")

	c.End("customer_a", testRoom)

	_, ok := c.Sessions.Get(testRoom)
	assert.False(t, ok, "session must be destroyed")
	assert.Empty(t, c.History.Messages(testRoom), "history must be destroyed")

	// A fresh join on the same key behaves as first-ever join.
	c.Disconnect("customer_a")
	c.Disconnect("consultant_b")
	connA2 := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	evts := connA2.events(t)
	assert.Zero(t, countOfType(evts, TypePreviousMessages), "no stale history")
	billing, ok := lastOfType(evts, TypeBillingUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 0.0, billing["customer_amount"], "no stale billing")
}

func TestDisconnectBelowTwoPausesAndDisablesChat(t *testing.T) {
	c, clk := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	clk.Advance(5 * time.Second)
	c.Disconnect("consultant_b")

	enabled, ok := lastOfType(connA.events(t), TypeChatEnabled)
	require.True(t, ok)
	assert.Equal(t, false, enabled["enabled"])

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	clk.Advance(60 * time.Second)
	elapsed, _ := sess.Snapshot(clk.Now())
	assert.EqualValues(t, 5, elapsed, "elapsed frozen at disconnect")
}

func TestDisconnectToZeroTearsDownSilently(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connB := connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)
	c.Message("customer_a", "hi")

	c.Disconnect("customer_a")
	c.Disconnect("consultant_b")

	_, ok := c.Sessions.Get(testRoom)
	assert.False(t, ok)
	assert.Empty(t, c.History.Messages(testRoom))
	_, ok = c.Rooms.Get(testRoom)
	assert.False(t, ok, "empty transport room must be stopped")
	assert.Zero(t, countOfType(connB.events(t), TypeSystemMessage), "disconnect teardown is silent")
}

func TestLeaveKeepsConnectionButFreesRoom(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	c.Leave("customer_a")

	_, _, inRoom := c.Registry.RoomOf("customer_a")
	assert.False(t, inRoom)
	_, bound := c.Registry.GetSession("customer_a")
	assert.True(t, bound, "leave must not drop the connection")
	_, ok := c.Sessions.Get(testRoom)
	assert.False(t, ok, "last leave tears the session down")
}

func TestRejoinSameRoomResendsBillingSnapshot(t *testing.T) {
	c, clk := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	clk.Advance(9 * time.Second)
	require.True(t, c.Meter.tick(sess.tickCtx, testRoom, sess))

	before := countOfType(connA.events(t), TypeBillingUpdate)
	c.Join("customer_a", testRoom, 0)

	evts := connA.events(t)
	assert.Greater(t, countOfType(evts, TypeBillingUpdate), before)
	timer, ok := lastOfType(evts, TypeTimerUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 9, timer["elapsed"])
	billing, ok := lastOfType(evts, TypeBillingUpdate)
	require.True(t, ok)
	assert.EqualValues(t, 4.5, billing["customer_amount"])

	room, ok := c.Rooms.Get(testRoom)
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount(), "repeated join must not change membership")
}

func TestResumeRequiresFullRoom(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connA := connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	c.Pause(testRoom, "short break")
	c.Disconnect("consultant_b")

	c.Resume(testRoom)
	assert.Zero(t, countOfType(connA.events(t), TypeChatResumed))

	sess, ok := c.Sessions.Get(testRoom)
	require.True(t, ok)
	sess.mu.Lock()
	status := sess.Status
	sess.mu.Unlock()
	assert.Equal(t, domain.StatusPaused, status, "timer must not run for a lone participant")
}

func TestOccupancyGateSerializedUnderChurn(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)

	for i := 0; i < 25; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			connect(c, "consultant_b")
			c.Join("consultant_b", testRoom, 0)
		}()
		go func() {
			defer wg.Done()
			c.Disconnect("consultant_b")
		}()
		wg.Wait()
	}

	// Whatever the interleaving, an active timer implies a full room.
	if sess, ok := c.Sessions.Get(testRoom); ok {
		sess.mu.Lock()
		status := sess.Status
		sess.mu.Unlock()
		if status == domain.StatusActive {
			room, ok := c.Rooms.Get(testRoom)
			require.True(t, ok)
			assert.Equal(t, 2, room.MemberCount())
		}
	}
}

func TestMessageAfterEndIsDropped(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	connect(c, "consultant_b")
	c.Join("consultant_b", testRoom, 0)

	c.End("customer_a", testRoom)
	c.Message("customer_a", "one last thing")

	assert.Empty(t, c.History.Messages(testRoom), "the dead key must not collect history")
	_, ok := c.Rooms.Get(testRoom)
	assert.False(t, ok, "the transport room is gone after end")

	_, _, inRoom := c.Registry.RoomOf("customer_a")
	assert.False(t, inRoom, "end must clear room membership")
	_, bound := c.Registry.GetSession("customer_a")
	assert.True(t, bound, "the connection itself stays up until the client leaves")
}

func TestJoinSwitchingRoomsLeavesThePreviousOne(t *testing.T) {
	c, _ := newControllerFixture(t, 999999)

	connect(c, "customer_a")
	c.Join("customer_a", testRoom, 0)
	c.Join("customer_a", "consult-43", 0)

	key, _, ok := c.Registry.RoomOf("customer_a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomKey("consult-43"), key)
	_, ok = c.Sessions.Get(testRoom)
	assert.False(t, ok, "abandoned room is torn down")
}
