package presence

import (
	"errors"

	"github.com/ajisai-dev/huesync/internal/eventbus"
	"github.com/ajisai-dev/huesync/pkg/domain"
)

// HandleConnect registers a new transport connection. Sessions are created
// lazily on login; until then the connection only counts against capacity.
func (m *Manager) HandleConnect(conn Conn) {
	m.logger.Debug("client connected", "client_id", conn.ID())
	m.publish(eventbus.EventClientConnected, conn, nil)
}

// HandleClose tears down whatever session the connection established
func (m *Manager) HandleClose(conn Conn) {
	m.closeConn(conn)
	m.logger.Debug("client disconnected", "client_id", conn.ID())
	m.publish(eventbus.EventClientDisconnected, conn, nil)
}

// HandleFrame dispatches one inbound frame. Malformed or unrecognized
// frames are logged and dropped without terminating the connection, and a
// panicking handler must never take the read loop down with it.
func (m *Manager) HandleFrame(conn Conn, frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in message handler",
				"client_id", conn.ID(),
				"panic", r,
			)
		}
	}()

	in, err := domain.Decode(frame)
	if err != nil {
		m.logger.Debug("dropping undecodable frame",
			"client_id", conn.ID(),
			"error", err,
		)
		return
	}

	switch in.Kind {
	case domain.KindLogin:
		m.handleLogin(conn, in.Login)
	case domain.KindPong:
		m.handlePong(conn, in.Pong)
	case domain.KindUpdateRoomStatus:
		m.handleRoomStatus(conn, in.RoomStatus)
	case domain.KindSetPreference:
		m.handlePreference(conn, in.Preference)
	}
}

func (m *Manager) handleLogin(conn Conn, p *domain.Login) {
	color, err := m.login(conn, p.Username)
	if err != nil {
		m.sendError(conn, err)
		return
	}

	payload, err := domain.EncodeLoginSuccess(p.Username, color)
	if err != nil {
		m.logger.Error("failed to encode loginSuccess", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil {
		m.logger.Debug("failed to send loginSuccess",
			"client_id", conn.ID(),
			"error", err,
		)
	}
}

// handlePong acks liveness and opportunistically reconciles the state the
// client reports. A username on the pong re-asserts identity the same way
// login does, without a loginSuccess reply; alias and room hints flow
// through the regular status transition. Hints from a connection with no
// session are ignored.
func (m *Manager) handlePong(conn Conn, p *domain.Pong) {
	conn.MarkAlive()

	if p.Username != "" {
		if _, err := m.login(conn, p.Username); err != nil {
			m.logger.Debug("pong identity rejected",
				"client_id", conn.ID(),
				"error", err,
			)
			return
		}
	}

	if p.Alias == "" && p.Room == "" {
		return
	}
	if err := m.applyStatus(conn, p.Alias, p.Room, p.Room != ""); err != nil {
		m.logger.Debug("pong hint ignored",
			"client_id", conn.ID(),
			"error", err,
		)
	}
}

func (m *Manager) handleRoomStatus(conn Conn, p *domain.RoomStatus) {
	if p.Room == "" {
		m.sendError(conn, domain.ErrEmptyRoom)
		return
	}

	if err := m.applyStatus(conn, p.Alias, p.Room, true); err != nil {
		m.sendError(conn, err)
		return
	}

	// Direct reply so the mover sees the room state without waiting out
	// the debounce window.
	if payload, ok := m.snapshotFor(conn); ok {
		if err := conn.Send(payload); err != nil {
			m.logger.Debug("failed to send room snapshot",
				"client_id", conn.ID(),
				"error", err,
			)
		}
	}
}

func (m *Manager) handlePreference(conn Conn, p *domain.Preference) {
	if p.Key != domain.PreferenceKeyColor {
		m.sendError(conn, domain.ErrUnsupportedPreference)
		return
	}

	if err := m.setColor(conn, p.Value); err != nil {
		m.sendError(conn, err)
	}
}

func (m *Manager) sendError(conn Conn, cause error) {
	m.publish(eventbus.EventError, conn, map[string]string{
		"error": cause.Error(),
	})

	payload, err := domain.EncodeError(cause.Error())
	if err != nil {
		m.logger.Error("failed to encode error reply", "error", err)
		return
	}
	if err := conn.Send(payload); err != nil && !errors.Is(err, domain.ErrConnectionClosed) {
		m.logger.Debug("failed to send error reply",
			"client_id", conn.ID(),
			"error", err,
		)
	}
}
