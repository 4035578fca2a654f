package confloader

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "RAFTER_"

// envNesting separates nested keys in environment variable names. A single
// underscore stays part of the key, so RAFTER_MESH__DIAL_TIMEOUT maps to
// mesh.dial_timeout.
const envNesting = "__"

// Loader loads configuration from a YAML file, environment variables and
// explicit maps. Later sources override earlier ones.
type Loader struct {
	mu        sync.RWMutex
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides []map[string]any
	loaded    bool
}

// Option is a function that configures the Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// NewLoader creates a new configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// FilePath returns the configuration file path, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads every source and unmarshals the result into target. Fields of
// target that no source sets keep their current values, so passing a struct
// pre-filled with defaults gives: defaults < file < env < maps.
func (l *Loader) Load(target any) error {
	k, err := l.read()
	if err != nil {
		return err
	}
	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	l.mu.Lock()
	l.k = k
	l.loaded = true
	l.mu.Unlock()
	return nil
}

// Reload re-reads every source without unmarshalling. Values read through
// the getters reflect the new state afterwards.
func (l *Loader) Reload() error {
	k, err := l.read()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.k = k
	l.mu.Unlock()
	return nil
}

func (l *Loader) read() (*koanf.Koanf, error) {
	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", l.filePath, err)
		}
	}

	if err := k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	l.mu.RLock()
	overrides := l.overrides
	l.mu.RUnlock()
	for _, m := range overrides {
		if err := k.Load(mapProvider(m), nil); err != nil {
			return nil, fmt.Errorf("load map: %w", err)
		}
	}
	return k, nil
}

// envKey maps RAFTER_LOG__LEVEL to log.level.
func (l *Loader) envKey(s string) string {
	s = strings.TrimPrefix(s, l.envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, envNesting, ".")
}

// LoadMap adds a map source with the highest priority, typically built from
// command-line flags. Keys use dotted paths. It takes effect on the next
// Load or Reload and is kept for every later one.
func (l *Loader) LoadMap(data map[string]any) {
	l.mu.Lock()
	l.overrides = append(l.overrides, data)
	l.mu.Unlock()
}

// GetString returns a string value from the last loaded configuration.
func (l *Loader) GetString(key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.String(key)
}

// IsLoaded returns true if configuration has been loaded.
func (l *Loader) IsLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Keys returns all configuration keys.
func (l *Loader) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.k.Keys()
}
