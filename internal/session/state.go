// Package session manages the lifecycle of one device link: the connection
// state machine, reconnect with exponential backoff, heartbeat supervision,
// framed transport I/O and the command dispatch path.
package session

// State is the session lifecycle phase.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
	StateError         State = "error"
	// StateFailed is terminal: reconnect attempts are exhausted and only an
	// explicit Connect leaves it.
	StateFailed State = "failed"
)

// Transition is one observed state change, delivered to the configured hook.
type Transition struct {
	Device string
	From   State
	To     State
	Reason string
	At     int64
}
