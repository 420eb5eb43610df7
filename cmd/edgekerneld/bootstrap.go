package main

import (
	"fmt"
	"os"

	"github.com/edgekernel/core/pkg/symtab"
	"github.com/edgekernel/core/pkg/value"
)

// loadBootstrapFile reads a YAML file and decodes it into a *value.Map
// for Context.Bootstrap to merge into the config tree. The top level of
// the file must be a mapping.
func loadBootstrapFile(path string) (*value.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	decoded, err := value.FromYAML(symtab.New(), data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m, ok := decoded.(*value.Map)
	if !ok {
		return nil, fmt.Errorf("%s: top-level document must be a mapping", path)
	}
	return m, nil
}
