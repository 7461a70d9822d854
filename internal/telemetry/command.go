package telemetry

// Command is a device-bound control request published by a consumer. The
// per-simulator mapping tables translate actions into protocol frames.
type Command struct {
	Action     string             `json:"action"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

// Param returns a named parameter or the given default.
func (c Command) Param(name string, def float64) float64 {
	if v, ok := c.Parameters[name]; ok {
		return v
	}
	return def
}

// CommandResult reports the outcome of dispatching a Command.
type CommandResult struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Result codes.
const (
	CodeOK                 = "OK"
	CodeUnsupportedCommand = "UNSUPPORTED_COMMAND"
	CodeNotConnected       = "NOT_CONNECTED"
	CodeSendFailed         = "SEND_FAILED"
)

// Unsupported builds the rejection result for an unmapped action.
func Unsupported(action string) CommandResult {
	return CommandResult{Success: false, Code: CodeUnsupportedCommand, Message: "no mapping for action " + action}
}
