package relay

// State is the connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAwaitingKeys
	StateValidating
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAwaitingKeys:
		return "awaiting-keys"
	case StateValidating:
		return "validating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close codes used on the relay socket.
const (
	CloseNormal    = 1000
	CloseGoingAway = 1001
	CloseAbnormal  = 1006

	// CloseNoPong is used by the client when the relay's heartbeat stops.
	CloseNoPong = 3000
	// CloseRestart is sent by the relay before a restart.
	CloseRestart = 3001
	// CloseSignOut ends the session. Neither side reconnects after it.
	CloseSignOut = 3002
)
