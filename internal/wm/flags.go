package wm

import (
	"fmt"
	"strings"
)

type flagName[T ~uint8 | ~uint16 | ~uint32] struct {
	flag T
	name string
}

func formatFlags[T ~uint8 | ~uint16 | ~uint32](v T, names []flagName[T]) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	var known T
	for _, n := range names {
		known |= n.flag
		if v&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if rest := v &^ known; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

func flagList[T ~uint8 | ~uint16 | ~uint32](v T, names []flagName[T]) []string {
	out := []string{}
	for _, n := range names {
		if v&n.flag != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func lookupFlag[T ~uint8 | ~uint16 | ~uint32](name string, names []flagName[T]) (T, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, n := range names {
		if n.name == name {
			return n.flag, true
		}
	}
	return 0, false
}
