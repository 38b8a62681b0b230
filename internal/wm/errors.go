package wm

import "errors"

// Error taxonomy shared by every component. Callers match with errors.Is;
// producers wrap with fmt.Errorf("...: %w", err) to attach context.
var (
	// ErrUnknownHandle reports an identifier that was never allocated or has
	// been invalidated.
	ErrUnknownHandle = errors.New("unknown handle")
	// ErrInvalidState reports an operation the object's lifecycle state does
	// not permit.
	ErrInvalidState = errors.New("invalid state")
	// ErrIncompatibleABI reports a module built against an ABI the host cannot serve.
	ErrIncompatibleABI = errors.New("incompatible abi")
	// ErrModuleInit reports a module failure during get-info or create-wm.
	ErrModuleInit = errors.New("module init failure")
)
