package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RoomDirectory_Bind_Last_Writer_Wins(t *testing.T) {
	d := NewRoomDirectory()

	d.Bind("lobby", "al", "alice")
	d.Bind("lobby", "al", "mallory")

	owner, ok := d.Owner("lobby", "al")
	require.True(t, ok)
	assert.Equal(t, "mallory", owner)
	assert.Len(t, d.Members("lobby"), 1)
}

func Test_RoomDirectory_Unbind_Removes_Empty_Rooms(t *testing.T) {
	d := NewRoomDirectory()

	d.Bind("lobby", "al", "alice")
	d.Bind("lobby", "bo", "bob")
	d.Unbind("lobby", "al")

	assert.ElementsMatch(t, []string{"bo"}, d.Members("lobby"))
	assert.True(t, d.Occupied("lobby"))

	d.Unbind("lobby", "bo")
	assert.False(t, d.Occupied("lobby"))
	assert.Empty(t, d.Rooms())
}

func Test_RoomDirectory_Unbind_Absent_Is_Noop(t *testing.T) {
	d := NewRoomDirectory()

	d.Unbind("lobby", "ghost")
	assert.Empty(t, d.Rooms())
}

func Test_RoomDirectory_Snapshot_Is_A_Copy(t *testing.T) {
	d := NewRoomDirectory()
	d.Bind("lobby", "al", "alice")

	snapshot := d.Snapshot("lobby")
	snapshot["al"] = "mallory"

	owner, _ := d.Owner("lobby", "al")
	assert.Equal(t, "alice", owner)
}
