package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketEnv overrides the IPC socket location when set.
const SocketEnv = "WMCORE_SOCKET"

// Dir returns the runtime directory holding the wmcore socket and pid
// file. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/wmcore-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/wmcore-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// SocketPath returns the daemon IPC socket path.
func SocketPath() (string, error) {
	if p := os.Getenv(SocketEnv); p != "" {
		return p, nil
	}
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "wmcore.sock"), nil
}

// PIDPath returns the file the running daemon records its pid in.
func PIDPath() (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(runtimeDir, "wmcore.pid"), nil
}
