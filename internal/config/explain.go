package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Explain returns the effective value at a dotted YAML path such as
// "builtin.layout" or "x11.key_grabs.0", and where it came from.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

// lookupValue walks the config's YAML form so paths always match the keys
// users write.
func lookupValue(cfg *Config, path string) (any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	cur := tree
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("unknown path: %s", path)
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("unknown path: %s", path)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("unknown path: %s", path)
		}
	}
	return cur, nil
}
