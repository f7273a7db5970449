package command

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Generators []Generator `yaml:"generators"`
}

// LoadRegistry reads a generator catalog from a YAML file. An empty path
// returns the compiled-in defaults so deployments without a catalog keep
// working.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse generator catalog: %w", err)
	}
	if len(file.Generators) == 0 {
		return nil, fmt.Errorf("generator catalog %s declares no generators", path)
	}
	for _, g := range file.Generators {
		if strings.TrimSpace(g.Name) == "" {
			return nil, fmt.Errorf("generator catalog %s: entry without a name", path)
		}
		if strings.TrimSpace(g.Path) == "" {
			return nil, fmt.Errorf("generator catalog %s: generator %q has no endpoint path", path, g.Name)
		}
	}
	return NewRegistry(file.Generators), nil
}
