package config

import (
	"maps"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked, for
// logging the effective configuration at startup.
func Sanitize(cfg *NodeConfig) *NodeConfig {
	sanitized := *cfg
	sanitized.Nodes = maps.Clone(cfg.Nodes)

	if sanitized.Mesh.Secret != "" {
		sanitized.Mesh.Secret = maskSecret(sanitized.Mesh.Secret)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
