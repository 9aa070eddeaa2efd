package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// secretKeys are masked by Pretty.
var secretKeys = map[string]bool{
	"llm_api_key":  true,
	"database_url": true,
}

// Map returns the configuration keyed by its flat option names.
func (c *Config) Map() (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(c, &out); err != nil {
		return nil, fmt.Errorf("failed to flatten config: %w", err)
	}
	return out, nil
}

// Pretty renders one "name value" line per option in declaration order, with
// secrets masked. It is logged once at startup.
func (c *Config) Pretty() string {
	values, err := c.Map()
	if err != nil {
		return err.Error()
	}
	var b strings.Builder
	for _, opt := range options {
		v, ok := values[opt.name]
		if !ok {
			continue
		}
		if secretKeys[opt.name] && fmt.Sprint(v) != "" {
			v = "****"
		}
		fmt.Fprintf(&b, "%-30s %v\n", opt.name, v)
	}
	return b.String()
}
