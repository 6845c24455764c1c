package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Provide loads configuration into cfg starting from its default values,
// overridden by environment variables prefixed with PREFIX_. Nested fields map
// with underscores doubled as delimiters, e.g. AGENTGATE_POSTGRES__HOST.
func Provide(prefix string, cfg Config) Config {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		panic(fmt.Errorf("load config defaults: %w", err))
	}

	envPrefix := strings.ToUpper(prefix) + "_"
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		panic(fmt.Errorf("load config from env: %w", err))
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		panic(fmt.Errorf("unmarshal config: %w", err))
	}
	return out
}
