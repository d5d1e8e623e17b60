// Package ipc is the unix-socket JSON-line control protocol of a running vaani runtime.
package ipc

// Request is one control command with its free-form arguments.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response reports the outcome of a Request and the runtime state after it.
type Response struct {
	OK       bool   `json:"ok"`
	State    string `json:"state,omitempty"`
	Language string `json:"language,omitempty"`
	Action   string `json:"action,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// maxRequestBytes bounds one request line.
const maxRequestBytes = 64 << 10
