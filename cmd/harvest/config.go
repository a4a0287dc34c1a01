package main

import (
	"io"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/fwojciec/harvest"
	"github.com/pelletier/go-toml/v2"
)

// TOMLConfig is a kong.ConfigurationLoader for TOML files.
//
// Top-level keys set flags of any command; a table named after a command
// sets flags for that command only and takes precedence. Keys are flag names
// with dashes or underscores, e.g. max_retries = 5 or delay = "250ms".
// Flags given on the command line override file values.
func TOMLConfig(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := toml.NewDecoder(r).Decode(&values); err != nil {
		return nil, harvest.WrapError(harvest.EINVALID, err, "parse config")
	}

	return kong.ResolverFunc(func(_ *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		if parent != nil && parent.Command != nil {
			if table, ok := values[parent.Command.Name].(map[string]any); ok {
				if v, ok := lookup(table, flag.Name); ok {
					return v, nil
				}
			}
		}
		if v, ok := lookup(values, flag.Name); ok {
			if _, isTable := v.(map[string]any); !isTable {
				return v, nil
			}
		}
		return nil, nil
	}), nil
}

func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	v, ok := m[strings.ReplaceAll(name, "-", "_")]
	return v, ok
}
