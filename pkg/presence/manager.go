// Package presence is the coordination core: it reconciles stable account
// identities with room-scoped aliases across any number of concurrent
// connections, tracks room membership, and drives the debounced room
// snapshot broadcasts.
package presence

import (
	"sync"
	"time"

	"github.com/ajisai-dev/huesync/internal/eventbus"
	"github.com/ajisai-dev/huesync/internal/logging"
	"github.com/ajisai-dev/huesync/internal/scheduler"
	"github.com/ajisai-dev/huesync/pkg/domain"
	"github.com/ajisai-dev/huesync/pkg/preference"
)

// Options represents broadcast and sweep timing
type Options struct {
	DebounceDelay        time.Duration
	MinBroadcastInterval time.Duration
	SweepInterval        time.Duration
	RepushDelay          time.Duration
}

// DefaultOptions returns the default timing values
func DefaultOptions() Options {
	return Options{
		DebounceDelay:        100 * time.Millisecond,
		MinBroadcastInterval: 2 * time.Second,
		SweepInterval:        30 * time.Second,
		RepushDelay:          500 * time.Millisecond,
	}
}

// Manager owns all presence state: sessions, the identity→connection sets,
// and the room directory. Every mutation runs to completion under one lock;
// outbound sends happen after the mutation, so no handler blocks on I/O
// mid-mutation.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*session
	identities map[string]map[string]struct{}
	rooms      *RoomDirectory

	prefs       *preference.Cache
	bus         eventbus.Bus
	logger      *logging.Logger
	broadcaster *Broadcaster
	opts        Options
	stopSweep   func()
}

// NewManager creates a presence manager over the given collaborators
func NewManager(prefs *preference.Cache, bus eventbus.Bus, sched *scheduler.Scheduler, logger *logging.Logger, opts Options) *Manager {
	m := &Manager{
		sessions:   make(map[string]*session),
		identities: make(map[string]map[string]struct{}),
		rooms:      NewRoomDirectory(),
		prefs:      prefs,
		bus:        bus,
		logger:     logger,
		opts:       opts,
	}
	m.broadcaster = NewBroadcaster(sched, opts.DebounceDelay, opts.MinBroadcastInterval, opts.RepushDelay, m.pushRoom)
	return m
}

// Start begins the periodic consistency sweep
func (m *Manager) Start() {
	m.stopSweep = m.broadcaster.StartSweep(m.opts.SweepInterval, m.occupiedRooms)
	m.logger.Info("presence manager started", "sweep_interval", m.opts.SweepInterval)
}

// Stop halts the periodic sweep
func (m *Manager) Stop() {
	if m.stopSweep != nil {
		m.stopSweep()
	}
	m.logger.Info("presence manager stopped")
}

// outbound is a message queued during a mutation and sent after it
type outbound struct {
	conn    Conn
	payload []byte
}

// login establishes (or overwrites) the session identity for a connection
// and returns the identity's current color. Re-login on a live connection
// migrates its connection-set membership and rebinds its room alias to the
// new identity, keeping alias and room intact.
func (m *Manager) login(conn Conn, username string) (string, error) {
	if username == "" {
		return "", domain.ErrEmptyIdentity
	}

	m.mu.Lock()
	s, ok := m.sessions[conn.ID()]
	switch {
	case !ok:
		s = &session{conn: conn, identity: username}
		m.sessions[conn.ID()] = s
		m.addIdentityConnLocked(username, conn.ID())
	case s.identity != username:
		previous := s.identity
		m.removeIdentityConnLocked(previous, conn.ID())
		s.identity = username
		m.addIdentityConnLocked(username, conn.ID())

		if s.room != "" && s.alias != "" {
			m.rooms.Bind(s.room, s.alias, username)
			m.broadcaster.Schedule(s.room)
		}

		m.logger.Info("session identity overwritten",
			"client_id", conn.ID(),
			"previous", previous,
			"identity", username,
		)
	}
	m.mu.Unlock()

	color := m.prefs.Color(username)

	m.publish(eventbus.EventSessionLogin, conn, map[string]string{
		"identity": username,
	})

	return color, nil
}

// applyStatus performs one atomic alias/room transition for a connection.
// Empty alias means "keep the current alias"; roomProvided distinguishes
// "no room hint" from an explicit room value. Transitions that change
// nothing are no-ops and schedule no broadcast.
func (m *Manager) applyStatus(conn Conn, alias, room string, roomProvided bool) error {
	m.mu.Lock()
	s, ok := m.sessions[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotLoggedIn
	}

	targetAlias := s.alias
	if alias != "" {
		targetAlias = alias
	}
	targetRoom := s.room
	if roomProvided {
		targetRoom = normalizeRoom(room)
	}

	if targetAlias == s.alias && targetRoom == s.room {
		m.mu.Unlock()
		return nil
	}

	var effects []outbound
	var touched []string

	if s.room != "" && s.alias != "" {
		left, notifications := m.unbindIfLastLocked(s)
		if left {
			effects = append(effects, notifications...)
			touched = append(touched, s.room)
			m.publish(eventbus.EventRoomLeft, s.conn, map[string]string{
				"identity": s.identity,
				"alias":    s.alias,
				"room":     s.room,
			})
		}
	}

	s.alias = targetAlias
	s.room = targetRoom

	if s.room != "" && s.alias != "" {
		m.rooms.Bind(s.room, s.alias, s.identity)
		touched = append(touched, s.room)
		m.publish(eventbus.EventRoomJoined, s.conn, map[string]string{
			"identity": s.identity,
			"alias":    s.alias,
			"room":     s.room,
		})
	}
	m.mu.Unlock()

	m.deliver(effects)
	for _, r := range touched {
		m.broadcaster.Schedule(r)
	}

	return nil
}

// closeConn tears down the session for a disconnected connection, running
// the same leave-room logic as an explicit room change.
func (m *Manager) closeConn(conn Conn) {
	m.mu.Lock()
	s, ok := m.sessions[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return
	}

	delete(m.sessions, conn.ID())
	m.removeIdentityConnLocked(s.identity, conn.ID())

	var effects []outbound
	var room string
	if s.room != "" && s.alias != "" {
		left, notifications := m.unbindIfLastLocked(s)
		if left {
			effects = notifications
			room = s.room
			m.publish(eventbus.EventRoomLeft, s.conn, map[string]string{
				"identity": s.identity,
				"alias":    s.alias,
				"room":     s.room,
			})
		}
	}
	m.mu.Unlock()

	m.deliver(effects)
	if room != "" {
		m.broadcaster.Schedule(room)
	}
}

// setColor persists a color preference and force-syncs every room the
// identity currently occupies, bypassing the broadcast throttle.
func (m *Manager) setColor(conn Conn, value string) error {
	m.mu.Lock()
	s, ok := m.sessions[conn.ID()]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotLoggedIn
	}
	identity := s.identity
	occupied := m.identityRoomsLocked(identity)
	m.mu.Unlock()

	if err := m.prefs.SetColor(identity, value); err != nil {
		// Persistence is best effort: the cache already has the value
		m.logger.Error("preference store write failed",
			"identity", identity,
			"error", err,
		)
	}

	m.publish(eventbus.EventPreferenceChanged, conn, map[string]string{
		"identity": identity,
		"color":    value,
	})

	for _, room := range occupied {
		m.broadcaster.ForceSync(room)
	}

	return nil
}

// unbindIfLastLocked removes the session's (room, alias) binding unless
// another live session of the same identity still uses that alias in that
// room. On removal it returns the userLeftRoom notifications for the
// remaining room members.
func (m *Manager) unbindIfLastLocked(s *session) (bool, []outbound) {
	for connID := range m.identities[s.identity] {
		if connID == s.conn.ID() {
			continue
		}
		if other, ok := m.sessions[connID]; ok && other.room == s.room && other.alias == s.alias {
			return false, nil
		}
	}

	m.rooms.Unbind(s.room, s.alias)

	payload, err := domain.EncodeUserLeftRoom(s.alias)
	if err != nil {
		m.logger.Error("failed to encode userLeftRoom", "error", err)
		return true, nil
	}

	var notifications []outbound
	for connID, other := range m.sessions {
		if connID == s.conn.ID() || other.room != s.room {
			continue
		}
		notifications = append(notifications, outbound{conn: other.conn, payload: payload})
	}
	return true, notifications
}

// pushRoom materializes the room snapshot and sends it to every connection
// whose session is bound to the room. Color resolution happens outside the
// state lock; the store may be slow.
func (m *Manager) pushRoom(room string) {
	m.mu.Lock()
	binding := m.rooms.Snapshot(room)
	if len(binding) == 0 {
		m.mu.Unlock()
		return
	}
	var targets []Conn
	for _, s := range m.sessions {
		if s.room == room {
			targets = append(targets, s.conn)
		}
	}
	m.mu.Unlock()

	payload, err := m.encodeSnapshot(room, binding)
	if err != nil {
		m.logger.Error("failed to encode room snapshot", "room", room, "error", err)
		return
	}

	for _, conn := range targets {
		if err := conn.Send(payload); err != nil {
			m.logger.Debug("failed to push snapshot",
				"client_id", conn.ID(),
				"room", room,
				"error", err,
			)
		}
	}
}

// encodeSnapshot builds a roomColorSync payload from an alias→identity map
func (m *Manager) encodeSnapshot(room string, binding map[string]string) ([]byte, error) {
	colorData := make(map[string]string, len(binding))
	for alias, identity := range binding {
		if identity == "" {
			continue
		}
		colorData[alias] = m.prefs.Color(identity)
	}
	return domain.EncodeRoomColorSync(room, colorData, binding)
}

// snapshotFor returns the encoded snapshot of the session's current room,
// or false when the session has no room or the room is empty.
func (m *Manager) snapshotFor(conn Conn) ([]byte, bool) {
	m.mu.Lock()
	s, ok := m.sessions[conn.ID()]
	if !ok || s.room == "" {
		m.mu.Unlock()
		return nil, false
	}
	room := s.room
	binding := m.rooms.Snapshot(room)
	m.mu.Unlock()

	if len(binding) == 0 {
		return nil, false
	}

	payload, err := m.encodeSnapshot(room, binding)
	if err != nil {
		m.logger.Error("failed to encode room snapshot", "room", room, "error", err)
		return nil, false
	}
	return payload, true
}

// identityRoomsLocked returns every room occupied by any session of identity
func (m *Manager) identityRoomsLocked(identity string) []string {
	seen := make(map[string]struct{})
	for connID := range m.identities[identity] {
		if s, ok := m.sessions[connID]; ok && s.room != "" {
			seen[s.room] = struct{}{}
		}
	}
	rooms := make([]string, 0, len(seen))
	for room := range seen {
		rooms = append(rooms, room)
	}
	return rooms
}

// occupiedRooms returns every room with at least one alias present
func (m *Manager) occupiedRooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms.Rooms()
}

func (m *Manager) addIdentityConnLocked(identity, connID string) {
	conns, ok := m.identities[identity]
	if !ok {
		conns = make(map[string]struct{})
		m.identities[identity] = conns
	}
	conns[connID] = struct{}{}
}

func (m *Manager) removeIdentityConnLocked(identity, connID string) {
	conns, ok := m.identities[identity]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(m.identities, identity)
	}
}

// deliver sends queued notifications after the owning mutation completes
func (m *Manager) deliver(effects []outbound) {
	for _, e := range effects {
		if err := e.conn.Send(e.payload); err != nil {
			m.logger.Debug("failed to deliver notification",
				"client_id", e.conn.ID(),
				"error", err,
			)
		}
	}
}

// publish emits a lifecycle event. The payload carries domain facts; the
// originating connection travels as metadata.
func (m *Manager) publish(eventType eventbus.EventType, conn Conn, data map[string]string) {
	if m.bus == nil {
		return
	}
	event := eventbus.NewEvent(eventType, "presence", data)
	if conn != nil {
		event.WithMetadata("client_id", conn.ID())
	}
	m.bus.PublishAsync(event)
}

// Stats reports the current presence counters
type Stats struct {
	Sessions   int `json:"sessions"`
	Identities int `json:"identities"`
	Rooms      int `json:"rooms"`
}

// Snapshot of the manager's counters for the stats endpoint
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Sessions:   len(m.sessions),
		Identities: len(m.identities),
		Rooms:      len(m.rooms.Rooms()),
	}
}
