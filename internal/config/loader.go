package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
)

type Source struct {
	Kind   SourceKind
	File   string
	Line   int
	Column int
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // YAML-path -> source (file only)
	// File is the path that was read; empty when defaults were used.
	File string
}

// ValidationError ties a configuration problem to its YAML path and, when
// known, the file position it came from.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wmcore", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	res, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadFromPath reads path on top of the defaults. A missing file yields the
// defaults.
func LoadFromPath(path string) (*LoadResult, error) {
	cfg := DefaultConfig()
	res := &LoadResult{Config: cfg, Sources: map[string]Source{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := decodeStrictYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err == nil {
			res.Sources = collectSources(&doc, path)
		}
		res.File = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, attachSourceContext(err, res.Sources)
	}
	return res, nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func collectSources(doc *yaml.Node, file string) map[string]Source {
	out := make(map[string]Source)
	if doc == nil {
		return out
	}
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	collectSourcesRec(node, file, "", out)
	return out
}

func collectSourcesRec(node *yaml.Node, file string, prefix string, out map[string]Source) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valNode := node.Content[i+1]
			path := keyNode.Value
			if prefix != "" {
				path = prefix + "." + keyNode.Value
			}
			out[path] = Source{
				Kind:   SourceFile,
				File:   file,
				Line:   valNode.Line,
				Column: valNode.Column,
			}
			collectSourcesRec(valNode, file, path, out)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			out[fmt.Sprintf("%s.%d", prefix, i)] = Source{
				Kind:   SourceFile,
				File:   file,
				Line:   item.Line,
				Column: item.Column,
			}
		}
	}
}

func attachSourceContext(err error, sources map[string]Source) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path == "" {
		return err
	}
	if src, ok := sources[verr.Path]; ok {
		verr.Source = src
	}
	return verr
}
