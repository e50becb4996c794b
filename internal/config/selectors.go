package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectors []byte

type selectorFile struct {
	Selectors []string `yaml:"selectors"`
}

// LoadSelectors returns the CSS selectors stripped before capture.
// An empty path yields the built-in list.
func LoadSelectors(fsys afero.Fs, path string) ([]string, error) {
	data := defaultSelectors
	if path != "" {
		raw, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read selectors file: %w", err)
		}
		data = raw
	}
	return parseSelectors(data)
}

func parseSelectors(data []byte) ([]string, error) {
	var f selectorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}
	out := make([]string, 0, len(f.Selectors))
	for _, s := range f.Selectors {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
