package control

import "fmt"

// The progress of a device through a game.
type Status int

const (
	// No connection
	Idle Status = iota

	// Reaching the lobby
	Connecting

	// In a room, waiting for the host to start
	Connected

	// The session has started and short uids are being assigned
	Handshake

	// Ready to play, waiting for the rest of the room
	Ready

	// Playing
	InGame

	// The connection failed.  Reconnecting resets the controller.
	NetError
)

func (s Status) String() string {
	switch s {
	default:
		return fmt.Sprintf("Unknown(%v)", int(s))
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Handshake:
		return "Handshake"
	case Ready:
		return "Ready"
	case InGame:
		return "InGame"
	case NetError:
		return "NetError"
	}
}
