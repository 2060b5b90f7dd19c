// Package relay maintains the persistent connection to the relay.
//
// A Conn owns one logical session: it dials, waits for the relay's
// Connection message, derives the key set from the seed and the salts it
// carries, proves possession of the keys and then keeps the socket alive
// with the relay's ping/pong heartbeat. Dropped sockets are redialled with
// exponential back-off until the caller closes the Conn.
//
//	Idle → Connecting → AwaitingKeys → Validating → Connected
//	                  ↘─────────────↗        ↓
//	                              Reconnecting → Connecting
//	any → Closed
//
// All state lives on a single goroutine. Socket readers, timers and
// background requests post closures to it; a generation counter discards
// events from sockets that have since been replaced.
//
// Requests are matched to responses by request id and time out on their
// own. A clean Close fails every outstanding request with errs.ErrClosed;
// a reconnect leaves them pending.
package relay
