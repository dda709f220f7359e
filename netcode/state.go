package netcode

// The state of a connection.  The lobby and peer negotiation drive every
// transition; the application observes them by polling Connection.State
// or through the state change callback.
type State int

const (
	// Not yet opened
	Inactive State = iota - 1

	// Dialing the lobby
	Connecting

	// Lobby reached; negotiating a room
	Negotiating

	// In a room and connected to the host
	Connected

	// The host has started the session
	InSession

	// The host left and a new host is being chosen
	Migrating

	// The connection was closed or the session shut down
	Disconnected

	// The room refused the device (full or already in session)
	Denied

	// The room runs a different api version
	Mismatched

	// The room does not exist
	Invalid

	// The lobby or transport failed
	Failed
)

func (s State) String() string {
	switch s {
	default:
		return "Inactive"
	case Connecting:
		return "Connecting"
	case Negotiating:
		return "Negotiating"
	case Connected:
		return "Connected"
	case InSession:
		return "InSession"
	case Migrating:
		return "Migrating"
	case Disconnected:
		return "Disconnected"
	case Denied:
		return "Denied"
	case Mismatched:
		return "Mismatched"
	case Invalid:
		return "Invalid"
	case Failed:
		return "Failed"
	}
}

// Returns true if no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	default:
		return false
	case Disconnected, Denied, Mismatched, Invalid, Failed:
		return true
	}
}
