package presence

import (
	"github.com/samber/lo"
)

// RoomDirectory tracks which aliases are present in each room and which
// identity owns each (room, alias) pair. Not safe for concurrent use; the
// Manager serializes access.
type RoomDirectory struct {
	// room -> alias -> owning identity
	rooms map[string]map[string]string
}

// NewRoomDirectory creates an empty directory
func NewRoomDirectory() *RoomDirectory {
	return &RoomDirectory{
		rooms: make(map[string]map[string]string),
	}
}

// Bind records alias as present in room under the given identity. Binding
// an existing pair overwrites the owner: last writer wins.
func (d *RoomDirectory) Bind(room, alias, identity string) {
	aliases, ok := d.rooms[room]
	if !ok {
		aliases = make(map[string]string)
		d.rooms[room] = aliases
	}
	aliases[alias] = identity
}

// Unbind removes the (room, alias) pair. Absent pairs are a no-op.
func (d *RoomDirectory) Unbind(room, alias string) {
	aliases, ok := d.rooms[room]
	if !ok {
		return
	}

	delete(aliases, alias)
	if len(aliases) == 0 {
		delete(d.rooms, room)
	}
}

// Members returns the aliases currently present in room
func (d *RoomDirectory) Members(room string) []string {
	return lo.Keys(d.rooms[room])
}

// Owner returns the identity owning the (room, alias) pair
func (d *RoomDirectory) Owner(room, alias string) (string, bool) {
	identity, ok := d.rooms[room][alias]
	return identity, ok
}

// Snapshot returns a copy of the alias→identity map for room
func (d *RoomDirectory) Snapshot(room string) map[string]string {
	aliases, ok := d.rooms[room]
	if !ok {
		return nil
	}

	snapshot := make(map[string]string, len(aliases))
	for alias, identity := range aliases {
		snapshot[alias] = identity
	}
	return snapshot
}

// Rooms returns every room with at least one alias present
func (d *RoomDirectory) Rooms() []string {
	return lo.Keys(d.rooms)
}

// Occupied reports whether the room has any alias present
func (d *RoomDirectory) Occupied(room string) bool {
	return len(d.rooms[room]) > 0
}
