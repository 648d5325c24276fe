package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajisai-dev/huesync/internal/eventbus"
	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/internal/scheduler"
	"github.com/ajisai-dev/huesync/pkg/domain"
	"github.com/ajisai-dev/huesync/pkg/preference"
)

type fakeConn struct {
	id string

	mu         sync.Mutex
	sent       [][]byte
	alive      int
	terminated bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(message))
	copy(buf, message)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeConn) MarkAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive++
}

func (c *fakeConn) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = true
}

func (c *fakeConn) aliveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

// frames decodes every sent message with the given type discriminator
func (c *fakeConn) frames(frameType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, raw := range c.sent {
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		if frame["type"] == frameType {
			out = append(out, frame)
		}
	}
	return out
}

func (c *fakeConn) frameCount(frameType string) int {
	return len(c.frames(frameType))
}

func testManagerLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	cache := preference.NewCache(preference.NewMemoryStore(), testManagerLogger())
	// Zero minimum interval: a skipped broadcast is only recovered by the
	// sweep, which these tests keep out of the picture. Throttle behavior
	// is covered by the broadcaster tests.
	m := NewManager(cache, nil, sched, testManagerLogger(), Options{
		DebounceDelay:        10 * time.Millisecond,
		MinBroadcastInterval: 0,
		SweepInterval:        time.Hour,
		RepushDelay:          15 * time.Millisecond,
	})
	return m
}

func send(m *Manager, conn Conn, format string, args ...any) {
	m.HandleFrame(conn, []byte(fmt.Sprintf(format, args...)))
}

func login(m *Manager, conn Conn, username string) {
	send(m, conn, `{"type":"login","username":%q}`, username)
}

func joinRoom(m *Manager, conn Conn, room, alias string) {
	send(m, conn, `{"type":"updateRoomStatus","room":%q,"alias":%q}`, room, alias)
}

func Test_Login_Replies_With_Stored_Color(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	login(m, conn, "alice")

	replies := conn.frames(domain.TypeLoginSuccess)
	require.Len(t, replies, 1)
	assert.Equal(t, "alice", replies[0]["username"])

	prefs, ok := replies[0]["preferences"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, preference.DefaultColor, prefs["color"])
}

func Test_Login_Empty_Username_Rejected(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	send(m, conn, `{"type":"login","username":""}`)

	require.Equal(t, 1, conn.frameCount(domain.TypeError))
	assert.Zero(t, conn.frameCount(domain.TypeLoginSuccess))
	assert.Zero(t, m.Stats().Sessions)
}

func Test_RoomStatus_Requires_Login(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	joinRoom(m, conn, "lobby", "al")

	require.Equal(t, 1, conn.frameCount(domain.TypeError))
	assert.Zero(t, m.Stats().Rooms)
}

func Test_Join_Room_Replies_And_Broadcasts(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")

	// The mover gets a direct snapshot reply before any debounce expires.
	replies := alice.frames(domain.TypeRoomColorSync)
	require.NotEmpty(t, replies)
	colorData, ok := replies[0]["colorData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, preference.DefaultColor, colorData["al"])
	profileMap, ok := replies[0]["profileMap"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", profileMap["al"])

	joinRoom(m, bob, "lobby", "bo")

	// The debounced broadcast reaches everyone in the room.
	require.Eventually(t, func() bool {
		frames := alice.frames(domain.TypeRoomColorSync)
		if len(frames) == 0 {
			return false
		}
		last := frames[len(frames)-1]
		colors, _ := last["colorData"].(map[string]any)
		return len(colors) == 2
	}, time.Second, 5*time.Millisecond)
}

func Test_Two_Tabs_Same_Alias_No_False_Leave(t *testing.T) {
	m := newTestManager(t)
	tabA := newFakeConn("c1")
	tabB := newFakeConn("c2")
	other := newFakeConn("c3")

	login(m, tabA, "alice")
	login(m, tabB, "alice")
	login(m, other, "bob")
	joinRoom(m, tabA, "lobby", "al")
	joinRoom(m, tabB, "lobby", "al")
	joinRoom(m, other, "lobby", "bo")

	m.HandleClose(tabA)

	// The second tab still holds the binding, so nobody is told "al" left.
	assert.Zero(t, other.frameCount(domain.TypeUserLeftRoom))
	owner, bound := m.rooms.Owner("lobby", "al")
	require.True(t, bound)
	assert.Equal(t, "alice", owner)

	m.HandleClose(tabB)

	require.Equal(t, 1, other.frameCount(domain.TypeUserLeftRoom))
	_, bound = m.rooms.Owner("lobby", "al")
	assert.False(t, bound)
}

func Test_Alias_Change_Unbinds_Old_Alias(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")
	joinRoom(m, bob, "lobby", "bo")

	joinRoom(m, alice, "lobby", "allie")

	left := bob.frames(domain.TypeUserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "al", left[0]["username"])

	_, bound := m.rooms.Owner("lobby", "al")
	assert.False(t, bound)
	owner, bound := m.rooms.Owner("lobby", "allie")
	require.True(t, bound)
	assert.Equal(t, "alice", owner)
}

func Test_Leave_Room_Via_None_Sentinel(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")
	joinRoom(m, bob, "lobby", "bo")

	joinRoom(m, alice, RoomNone, "al")

	left := bob.frames(domain.TypeUserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "al", left[0]["username"])
	assert.NotContains(t, m.rooms.Members("lobby"), "al")
}

func Test_Unchanged_Status_Broadcasts_Nothing(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")
	joinRoom(m, bob, "lobby", "bo")

	require.Eventually(t, func() bool {
		return bob.frameCount(domain.TypeRoomColorSync) > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond) // drain any still-pending broadcast
	baseline := bob.frameCount(domain.TypeRoomColorSync)

	joinRoom(m, alice, "lobby", "al")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, baseline, bob.frameCount(domain.TypeRoomColorSync))
}

func Test_Preference_Change_ForceSyncs_Room(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")
	joinRoom(m, bob, "lobby", "bo")

	require.Eventually(t, func() bool {
		return bob.frameCount(domain.TypeRoomColorSync) > 0
	}, time.Second, 5*time.Millisecond)
	baseline := bob.frameCount(domain.TypeRoomColorSync)

	send(m, alice, `{"type":"setPreference","key":"color","value":"rgb(10,20,30)"}`)

	// Immediate push plus one delayed re-push, throttle notwithstanding.
	require.Eventually(t, func() bool {
		return bob.frameCount(domain.TypeRoomColorSync) >= baseline+2
	}, time.Second, 5*time.Millisecond)

	frames := bob.frames(domain.TypeRoomColorSync)
	last := frames[len(frames)-1]
	colors, ok := last["colorData"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rgb(10,20,30)", colors["al"])
}

func Test_Preference_Unknown_Key_Rejected(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	login(m, conn, "alice")
	send(m, conn, `{"type":"setPreference","key":"theme","value":"dark"}`)

	require.Equal(t, 1, conn.frameCount(domain.TypeError))
}

func Test_Relogin_Overwrites_Identity(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	login(m, conn, "bob")
	joinRoom(m, conn, "lobby", "al")
	login(m, conn, "carol")

	owner, bound := m.rooms.Owner("lobby", "al")
	require.True(t, bound)
	assert.Equal(t, "carol", owner)

	stats := m.Stats()
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Identities)
}

func Test_Pong_Marks_Alive_And_Reconciles(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	send(m, conn, `{"type":"pong","username":"alice","alias":"al","room":"lobby"}`)

	assert.Equal(t, 1, conn.aliveCount())
	owner, bound := m.rooms.Owner("lobby", "al")
	require.True(t, bound)
	assert.Equal(t, "alice", owner)

	// A pong is a liveness ack, never a request: no loginSuccess reply
	// even when it re-asserts identity.
	assert.Zero(t, conn.frameCount(domain.TypeLoginSuccess))
}

func Test_Malformed_Frame_Is_Dropped_Silently(t *testing.T) {
	m := newTestManager(t)
	conn := newFakeConn("c1")

	m.HandleFrame(conn, []byte(`{not json`))
	m.HandleFrame(conn, []byte(`{"type":"teleport"}`))

	assert.Zero(t, conn.frameCount(domain.TypeError))
	assert.Zero(t, m.Stats().Sessions)
}

func Test_Same_Identity_Distinct_Aliases_Leave_Independently(t *testing.T) {
	m := newTestManager(t)
	tabA := newFakeConn("c1")
	tabB := newFakeConn("c2")

	login(m, tabA, "alice")
	joinRoom(m, tabA, "r1", "Alice-Tab")
	login(m, tabB, "alice")
	joinRoom(m, tabB, "r1", "Alice-Tab2")

	assert.ElementsMatch(t, []string{"Alice-Tab", "Alice-Tab2"}, m.rooms.Members("r1"))

	// Same identity, but a different alias: the shared identity does not
	// suppress this departure.
	m.HandleClose(tabB)

	left := tabA.frames(domain.TypeUserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "Alice-Tab2", left[0]["username"])
	assert.ElementsMatch(t, []string{"Alice-Tab"}, m.rooms.Members("r1"))
}

func Test_Two_Tab_Lifecycle_End_To_End(t *testing.T) {
	m := newTestManager(t)
	tabA := newFakeConn("c1")
	tabB := newFakeConn("c2")
	observer := newFakeConn("c3")

	login(m, tabA, "alice")
	login(m, tabB, "alice")
	login(m, observer, "bob")
	joinRoom(m, tabA, "gaming", "CoolAlice")
	joinRoom(m, tabB, "gaming", "CoolAlice")
	joinRoom(m, observer, "gaming", "bob")

	// Color change from one tab reaches every member, both tabs included.
	send(m, tabA, `{"type":"setPreference","key":"color","value":"rgb(0,128,255)"}`)
	for _, conn := range []*fakeConn{tabA, tabB, observer} {
		require.Eventually(t, func() bool {
			frames := conn.frames(domain.TypeRoomColorSync)
			if len(frames) == 0 {
				return false
			}
			colors, _ := frames[len(frames)-1]["colorData"].(map[string]any)
			return colors["CoolAlice"] == "rgb(0,128,255)"
		}, time.Second, 5*time.Millisecond)
	}

	// Closing one tab changes nothing for the room.
	m.HandleClose(tabA)
	assert.Zero(t, observer.frameCount(domain.TypeUserLeftRoom))
	assert.Contains(t, m.rooms.Members("gaming"), "CoolAlice")

	// Closing the last tab is the real departure.
	m.HandleClose(tabB)
	left := observer.frames(domain.TypeUserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "CoolAlice", left[0]["username"])
	assert.NotContains(t, m.rooms.Members("gaming"), "CoolAlice")

	// A rejoin finds the color persisted for the identity.
	tabC := newFakeConn("c4")
	login(m, tabC, "alice")
	replies := tabC.frames(domain.TypeLoginSuccess)
	require.Len(t, replies, 1)
	prefs, _ := replies[0]["preferences"].(map[string]any)
	assert.Equal(t, "rgb(0,128,255)", prefs["color"])
}

func Test_Lifecycle_Events_Carry_Connection_Metadata(t *testing.T) {
	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	bus := eventbus.NewInMemoryBus(32)
	bus.Start()
	t.Cleanup(bus.Stop)

	var mu sync.Mutex
	events := make(map[eventbus.EventType]*eventbus.Event)
	bus.SubscribeAll(func(e *eventbus.Event) {
		mu.Lock()
		events[e.Type] = e
		mu.Unlock()
	})

	cache := preference.NewCache(preference.NewMemoryStore(), testManagerLogger())
	m := NewManager(cache, bus, sched, testManagerLogger(), Options{
		DebounceDelay: 10 * time.Millisecond,
		SweepInterval: time.Hour,
		RepushDelay:   15 * time.Millisecond,
	})

	conn := newFakeConn("c1")
	m.HandleConnect(conn)
	login(m, conn, "alice")
	joinRoom(m, conn, "lobby", "al")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return events[eventbus.EventClientConnected] != nil &&
			events[eventbus.EventSessionLogin] != nil &&
			events[eventbus.EventRoomJoined] != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, eventType := range []eventbus.EventType{
		eventbus.EventClientConnected,
		eventbus.EventSessionLogin,
		eventbus.EventRoomJoined,
	} {
		assert.Equal(t, "c1", events[eventType].Metadata["client_id"], string(eventType))
	}

	joined, _ := events[eventbus.EventRoomJoined].Data.(map[string]string)
	require.NotNil(t, joined)
	assert.Equal(t, "alice", joined["identity"])
	assert.Equal(t, "lobby", joined["room"])
}

func Test_Disconnect_Notifies_Remaining_Members(t *testing.T) {
	m := newTestManager(t)
	alice := newFakeConn("c1")
	bob := newFakeConn("c2")

	login(m, alice, "alice")
	login(m, bob, "bob")
	joinRoom(m, alice, "lobby", "al")
	joinRoom(m, bob, "lobby", "bo")

	m.HandleClose(alice)

	left := bob.frames(domain.TypeUserLeftRoom)
	require.Len(t, left, 1)
	assert.Equal(t, "al", left[0]["username"])
	assert.Equal(t, 1, m.Stats().Sessions)
}
