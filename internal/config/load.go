package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"sigs.k8s.io/yaml"
)

// Load reads a configuration file, choosing the format from its extension.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	t, err := Parse(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes data in format: yaml, yml, json, ini or toml.
func Parse(data []byte, format string) (*Tree, error) {
	switch strings.ToLower(format) {
	case "yaml", "yml", "json":
		var m map[string]any
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return FromMap(m), nil
	case "toml":
		var m map[string]any
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, err
		}
		return FromMap(m), nil
	case "ini", "cfg":
		return parseINI(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrFormat, format)
}

// parseINI maps sections to dotted prefixes. Section names may themselves
// be dotted, so [monitor.limits] fills monitor.limits.*.
func parseINI(data []byte) (*Tree, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, data)
	if err != nil {
		return nil, err
	}
	t := New()
	for _, section := range f.Sections() {
		prefix := ""
		if name := section.Name(); !strings.EqualFold(name, ini.DefaultSection) {
			prefix = name + "."
		}
		for _, key := range section.Keys() {
			t.Set(prefix+key.Name(), ParseScalar(key.String()))
		}
	}
	return t, nil
}

// ParseOverrides turns "path=value" pairs into a tree.
func ParseOverrides(pairs []string) (*Tree, error) {
	t := New()
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: override %q must be path=value", ErrFormat, kv)
		}
		t.Set(strings.TrimSpace(k), ParseScalar(v))
	}
	return t, nil
}
