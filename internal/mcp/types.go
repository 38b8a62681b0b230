package mcp

// EmptyInput is the input for tools that take no arguments.
type EmptyInput struct{}

// StatusOutput is the output for the wm_status tool.
type StatusOutput struct {
	Backend       string       `json:"backend"`
	Toplevels     int          `json:"toplevels"`
	Closing       int          `json:"closing"`
	Outputs       int          `json:"outputs"`
	PendingAcks   int          `json:"pending_acks"`
	LastSerial    uint32       `json:"last_serial"`
	KeyboardFocus string       `json:"keyboard_focus"`
	PointerFocus  string       `json:"pointer_focus"`
	Modifiers     []string     `json:"modifiers"`
	Module        ModuleOutput `json:"module"`
	UptimeSeconds int64        `json:"uptime_seconds"`
}

// ToplevelOutput describes one toplevel.
type ToplevelOutput struct {
	ID          uint32   `json:"id"`
	AppID       string   `json:"app_id"`
	Title       string   `json:"title"`
	Phase       string   `json:"phase"`
	State       []string `json:"state"`
	Decorations string   `json:"decorations"`
	// Geometry is WIDTHxHEIGHT+X+Y, empty before the first commit.
	Geometry    string   `json:"geometry"`
	Parent      uint32   `json:"parent"`
	Mapped      bool     `json:"mapped"`
	Outstanding []uint32 `json:"outstanding"`
}

// ListToplevelsOutput is the output for the list_toplevels tool.
type ListToplevelsOutput struct {
	Toplevels []ToplevelOutput `json:"toplevels"`
}

// OutputOutput describes one output.
type OutputOutput struct {
	ID          uint32 `json:"id"`
	Name        string `json:"name"`
	Geometry    string `json:"geometry"`
	RefreshRate uint32 `json:"refresh_mhz"`
}

// ListOutputsOutput is the output for the list_outputs tool.
type ListOutputsOutput struct {
	Outputs []OutputOutput `json:"outputs"`
}

// ModuleOutput is the output for the module_info and reload_module tools.
type ModuleOutput struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	ABI           string `json:"abi"`
	InstanceID    string `json:"instance_id"`
	Builtin       bool   `json:"builtin"`
	Path          string `json:"path"`
	ActivatedAt   string `json:"activated_at"`
	Failures      int    `json:"failures"`
	LastError     string `json:"last_error"`
	LastLoadError string `json:"last_load_error"`
}

// ReloadModuleInput is the input for the reload_module tool.
type ReloadModuleInput struct {
	Path string `json:"path,omitempty" jsonschema:"Module directory to load. Empty reloads the configured module; :builtin switches to the built-in policy."`
}
