package presence

// RoomNone is the sentinel room value clients send to mean "no room".
// It is never stored and never broadcast.
const RoomNone = "none"

// Conn is the transport surface the presence core needs from a connection
type Conn interface {
	// ID returns the unique connection identifier
	ID() string

	// Send queues a message for delivery without blocking
	Send(message []byte) error

	// MarkAlive records a heartbeat acknowledgment
	MarkAlive()

	// Terminate drops the connection without a close handshake
	Terminate()
}

// session is the per-connection presence record. The identity is set at
// login and only ever replaced wholesale by a re-login; alias and room
// change freely over the connection's life.
type session struct {
	conn     Conn
	identity string
	alias    string
	room     string
}

// normalizeRoom maps the unset sentinel and the empty string to "no room"
func normalizeRoom(room string) string {
	if room == RoomNone {
		return ""
	}
	return room
}
