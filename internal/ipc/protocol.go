package ipc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/1broseidon/wmcore/internal/wm"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus     CommandType = "GET_STATUS"
	CommandListToplevels CommandType = "LIST_TOPLEVELS"
	CommandListOutputs   CommandType = "LIST_OUTPUTS"
	CommandGetModule     CommandType = "GET_MODULE"
	CommandReloadModule  CommandType = "RELOAD_MODULE"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Toplevels     int         `json:"toplevels"`
	Closing       int         `json:"closing"`
	Outputs       int         `json:"outputs"`
	LastSerial    uint32      `json:"last_serial"`
	PendingAcks   int         `json:"pending_acks"`
	KeyboardFocus string      `json:"keyboard_focus"`
	PointerFocus  string      `json:"pointer_focus"`
	Modifiers     []string    `json:"modifiers,omitempty"`
	Module        *ModuleData `json:"module,omitempty"`
	Backend       string      `json:"backend"`
	UptimeSeconds int64       `json:"uptime_seconds"`
}

// ToplevelInfo describes one toplevel in LIST_TOPLEVELS.
type ToplevelInfo struct {
	ID          wm.ToplevelID `json:"id"`
	AppID       string        `json:"app_id,omitempty"`
	Title       string        `json:"title,omitempty"`
	Phase       string        `json:"phase"`
	Features    []string      `json:"features,omitempty"`
	State       []string      `json:"state,omitempty"`
	Decorations string        `json:"decorations"`
	Geometry    *wm.Geometry  `json:"geometry,omitempty"`
	Parent      wm.ToplevelID `json:"parent,omitempty"`
	Mapped      bool          `json:"mapped"`
	Outstanding []uint32      `json:"outstanding,omitempty"`
	Snapshots   int           `json:"snapshots"`
}

type ToplevelsData struct {
	Toplevels []ToplevelInfo `json:"toplevels"`
}

// OutputInfo describes one output in LIST_OUTPUTS.
type OutputInfo struct {
	ID          wm.OutputID `json:"id"`
	Name        string      `json:"name"`
	Geometry    wm.Geometry `json:"geometry"`
	RefreshRate uint32      `json:"refresh_mhz"`
}

type OutputsData struct {
	Outputs []OutputInfo `json:"outputs"`
}

// ModuleData describes the active policy module.
type ModuleData struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	ABI           string    `json:"abi"`
	InstanceID    string    `json:"instance_id"`
	Builtin       bool      `json:"builtin"`
	Path          string    `json:"path,omitempty"`
	ActivatedAt   time.Time `json:"activated_at"`
	Failures      int       `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastLoadError string    `json:"last_load_error,omitempty"`
}

// ReloadModulePayload represents the payload for RELOAD_MODULE. An empty
// path reloads the configured module directory.
type ReloadModulePayload struct {
	Path string `json:"path,omitempty"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
