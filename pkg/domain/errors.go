package domain

import (
	"errors"
)

// Common domain errors
var (
	// ErrMalformedMessage is returned when a frame is not valid JSON
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType is returned for a type outside the accepted set
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrNotLoggedIn is returned when an operation requires a session identity
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrEmptyIdentity is returned when a login carries no username
	ErrEmptyIdentity = errors.New("username is required")

	// ErrEmptyRoom is returned when a room transition carries no room name
	ErrEmptyRoom = errors.New("room is required")

	// ErrUnsupportedPreference is returned for preference keys other than color
	ErrUnsupportedPreference = errors.New("unsupported preference key")

	// ErrConnectionClosed is returned when sending on a closed connection
	ErrConnectionClosed = errors.New("connection closed")

	// ErrRegistryFull is returned when the connection ceiling is reached
	ErrRegistryFull = errors.New("connection limit reached")
)
