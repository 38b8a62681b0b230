package module

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/wm"
)

// ABI is the (major, minor) version of the host/module contract.
type ABI struct {
	Major uint16 `json:"major"`
	Minor uint16 `json:"minor"`
}

// HostABI is the contract version this engine implements.
var HostABI = ABI{Major: 0, Minor: 1}

func (a ABI) String() string {
	return fmt.Sprintf("%d.%d", a.Major, a.Minor)
}

// CheckABI accepts a module whose major version equals the host's and
// whose required minor version the host supports.
func CheckABI(host, mod ABI) error {
	if mod.Major != host.Major {
		return fmt.Errorf("%w: module abi %s, host abi %s (major mismatch)", wm.ErrIncompatibleABI, mod, host)
	}
	if mod.Minor > host.Minor {
		return fmt.Errorf("%w: module needs abi %s, host provides %s", wm.ErrIncompatibleABI, mod, host)
	}
	return nil
}
