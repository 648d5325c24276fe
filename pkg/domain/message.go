package domain

import (
	"encoding/json"
)

// Kind discriminates inbound message types
type Kind string

const (
	KindLogin            Kind = "login"
	KindPong             Kind = "pong"
	KindUpdateRoomStatus Kind = "updateRoomStatus"
	KindSetPreference    Kind = "setPreference"
)

// Outbound message type discriminators
const (
	TypeLoginSuccess  = "loginSuccess"
	TypeRoomColorSync = "roomColorSync"
	TypeUserLeftRoom  = "userLeftRoom"
	TypeError         = "error"
	TypePing          = "ping"
)

// PreferenceKeyColor is the only preference key clients may set
const PreferenceKeyColor = "color"

// envelope is the superset of fields any inbound frame may carry
type envelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Alias    string `json:"alias"`
	Room     string `json:"room"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// Login asserts an account identity for the connection
type Login struct {
	Username string
}

// Pong acknowledges a heartbeat and may carry reconciliation hints
type Pong struct {
	Username string
	Alias    string
	Room     string
}

// RoomStatus requests a room and/or alias transition
type RoomStatus struct {
	Room  string
	Alias string
}

// Preference requests a preference write
type Preference struct {
	Key   string
	Value string
}

// Inbound is the tagged union over the accepted message kinds. Exactly one
// payload field is non-nil, matching Kind.
type Inbound struct {
	Kind       Kind
	Login      *Login
	Pong       *Pong
	RoomStatus *RoomStatus
	Preference *Preference
}

// Decode parses a raw frame into the inbound union. It returns
// ErrMalformedMessage for non-JSON input and ErrUnknownMessageType for a
// type outside the accepted set. Field-level validity (empty identity,
// empty room) is a handler concern, not a decode concern.
func Decode(data []byte) (*Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedMessage
	}

	switch Kind(env.Type) {
	case KindLogin:
		return &Inbound{
			Kind:  KindLogin,
			Login: &Login{Username: env.Username},
		}, nil
	case KindPong:
		return &Inbound{
			Kind: KindPong,
			Pong: &Pong{Username: env.Username, Alias: env.Alias, Room: env.Room},
		}, nil
	case KindUpdateRoomStatus:
		return &Inbound{
			Kind:       KindUpdateRoomStatus,
			RoomStatus: &RoomStatus{Room: env.Room, Alias: env.Alias},
		}, nil
	case KindSetPreference:
		return &Inbound{
			Kind:       KindSetPreference,
			Preference: &Preference{Key: env.Key, Value: env.Value},
		}, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// LoginSuccess confirms a login and echoes the stored preferences
type LoginSuccess struct {
	Type        string      `json:"type"`
	Username    string      `json:"username"`
	Preferences Preferences `json:"preferences"`
}

// Preferences is the per-identity preference payload
type Preferences struct {
	Color string `json:"color"`
}

// RoomColorSync is the room snapshot pushed to every member
type RoomColorSync struct {
	Type       string            `json:"type"`
	Room       string            `json:"room"`
	ColorData  map[string]string `json:"colorData"`
	ProfileMap map[string]string `json:"profileMap,omitempty"`
}

// UserLeftRoom announces that an alias is no longer present in the room
type UserLeftRoom struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ErrorMessage is the explicit error reply for invalid requests
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PingMessage is the application-level heartbeat probe
type PingMessage struct {
	Type string `json:"type"`
}

// EncodeLoginSuccess builds a loginSuccess frame
func EncodeLoginSuccess(username, color string) ([]byte, error) {
	return json.Marshal(LoginSuccess{
		Type:        TypeLoginSuccess,
		Username:    username,
		Preferences: Preferences{Color: color},
	})
}

// EncodeRoomColorSync builds a roomColorSync frame
func EncodeRoomColorSync(room string, colorData, profileMap map[string]string) ([]byte, error) {
	return json.Marshal(RoomColorSync{
		Type:       TypeRoomColorSync,
		Room:       room,
		ColorData:  colorData,
		ProfileMap: profileMap,
	})
}

// EncodeUserLeftRoom builds a userLeftRoom frame for the given alias
func EncodeUserLeftRoom(alias string) ([]byte, error) {
	return json.Marshal(UserLeftRoom{
		Type:     TypeUserLeftRoom,
		Username: alias,
	})
}

// EncodeError builds an error frame
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{
		Type:    TypeError,
		Message: message,
	})
}

// EncodePing builds a heartbeat probe frame
func EncodePing() ([]byte, error) {
	return json.Marshal(PingMessage{Type: TypePing})
}
