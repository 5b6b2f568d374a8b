package rules

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed rules.yaml
var defaultRules []byte

// Default returns the built-in table shipped with the binary.
func Default() (*Table, error) {
	return Parse(defaultRules)
}

// Load reads the table at path, or the built-in table when path is empty.
func Load(_ context.Context, path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	return load(file.Provider(path))
}

// Parse decodes and validates a YAML rule table.
func Parse(doc []byte) (*Table, error) {
	return load(rawbytes.Provider(doc))
}

func load(p koanf.Provider) (*Table, error) {
	k := koanf.New(".")
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadTable, err)
	}
	var t Table
	if err := k.UnmarshalWithConf("", &t, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadTable, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}
