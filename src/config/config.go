// Package config resolves Terma's configuration once at startup from
// defaults, the on-disk JSON file, environment variables, and CLI flags.
// Resolution happens once; the result is an immutable Config value passed
// to every component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the fully resolved, immutable configuration snapshot.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Terminal TerminalConfig `mapstructure:"terminal"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Hermes   HermesConfig   `mapstructure:"hermes"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// ServerConfig controls the listening surfaces.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	WSPort   int    `mapstructure:"ws_port"` // 0 means "share the REST port"
	WSHost   string `mapstructure:"ws_host"`
	UIHost   string `mapstructure:"ui_host"`
	UIPort   int    `mapstructure:"ui_port"` // 0 means "server.port + 1"
	NoUI     bool   `mapstructure:"no_ui"`
	LogLevel string `mapstructure:"log_level"` // one of logrus.ParseLevel's names
}

// LogrusLevel parses LogLevel, falling back to logrus.InfoLevel for an
// empty or unrecognized value rather than failing startup over a typo.
func (s ServerConfig) LogrusLevel() logrus.Level {
	if s.LogLevel == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(s.LogLevel)
	if err != nil {
		logrus.Warnf("config: invalid log_level %q, defaulting to info: %v", s.LogLevel, err)
		return logrus.InfoLevel
	}
	return level
}

// TerminalConfig holds client-facing terminal preferences persisted in
// ~/.terma/config.json; font_size/theme are opaque to the server and
// forwarded verbatim to the UI.
type TerminalConfig struct {
	DefaultShell string `mapstructure:"default_shell"`
	FontSize     int    `mapstructure:"font_size"`
	Theme        string `mapstructure:"theme"`
}

// LLMConfig configures the llmadapter client.
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	Model        string `mapstructure:"model"`
	AdapterURL   string `mapstructure:"adapter_url"`
	AdapterWSURL string `mapstructure:"adapter_ws_url"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// HermesConfig configures the registry-announcement client.
type HermesConfig struct {
	URL      string `mapstructure:"url"`
	Register bool   `mapstructure:"register"`
}

// RegistryConfig configures the session registry's idle reaper.
type RegistryConfig struct {
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
	IdleTimeoutSeconds     int `mapstructure:"idle_timeout_seconds"`
}

func (r RegistryConfig) CleanupInterval() time.Duration {
	return time.Duration(r.CleanupIntervalSeconds) * time.Second
}

func (r RegistryConfig) IdleTimeout() time.Duration {
	return time.Duration(r.IdleTimeoutSeconds) * time.Second
}

// DefaultConfigDir is ~/.terma; DefaultConfigPath is ~/.terma/config.json.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".terma"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8004)
	v.SetDefault("server.ws_port", 0)
	v.SetDefault("server.ws_host", "0.0.0.0")
	v.SetDefault("server.ui_host", "0.0.0.0")
	v.SetDefault("server.ui_port", 0)
	v.SetDefault("server.no_ui", false)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("terminal.default_shell", "")
	v.SetDefault("terminal.font_size", 14)
	v.SetDefault("terminal.theme", "dark")

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-3-haiku")
	v.SetDefault("llm.adapter_url", "http://localhost:8080")
	v.SetDefault("llm.adapter_ws_url", "")
	v.SetDefault("llm.system_prompt", "")

	v.SetDefault("hermes.url", "")
	v.SetDefault("hermes.register", false)

	v.SetDefault("registry.cleanup_interval_seconds", 3600)
	v.SetDefault("registry.idle_timeout_seconds", 86400)
}

// bindEnv wires the handful of environment variable names explicitly
// because they don't follow the TERMA_<DOTKEY> convention, plus the
// generic TERMA_ prefix for everything else.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("TERMA")
	v.AutomaticEnv()

	binds := map[string]string{
		"server.port":     "TERMA_PORT",
		"server.ws_port":  "TERMA_WS_PORT",
		"server.ws_host":  "TERMA_WS_HOST",
		"server.ui_host":  "TERMA_UI_HOST",
		"hermes.url":      "HERMES_URL",
		"hermes.register": "REGISTER_WITH_HERMES",
		"llm.adapter_url": "TEKTON_LLM_URL",
		"llm.provider":    "TEKTON_LLM_PROVIDER",
		"llm.model":       "TEKTON_LLM_MODEL",
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("config: bind env %s: %w", env, err)
		}
	}
	return nil
}

// Load resolves configuration from defaults, the on-disk file (created
// with defaults if absent), and environment variables. flags, if non-nil,
// is merged in last so CLI flags win over everything else.
func Load(flags *viper.Viper) (Config, error) {
	v := viper.New()
	setDefaults(v)

	dir, err := DefaultConfigDir()
	if err != nil {
		return Config{}, err
	}
	path := filepath.Join(dir, "config.json")

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return Config{}, fmt.Errorf("config: create %s: %w", dir, mkErr)
		}
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if writeErr := v.SafeWriteConfigAs(path); writeErr != nil {
			return Config{}, fmt.Errorf("config: write defaults to %s: %w", path, writeErr)
		}
		logrus.Infof("config: wrote defaults to %s", path)
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	// Set, not MergeConfigMap: only Viper overrides outrank environment
	// variables; merged maps land in the config-file layer below them.
	if flags != nil {
		for _, key := range flags.AllKeys() {
			v.Set(key, flags.Get(key))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}

// WatchReloadable starts an fsnotify watch on ~/.terma/config.json and
// invokes onChange with the re-resolved Config whenever the file is
// written. The caller decides which fields of the reloaded Config to
// actually apply.
func WatchReloadable(onChange func(Config)) (stop func(), err error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "config.json")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(nil)
				if err != nil {
					logrus.Warnf("config: reload after change failed: %v", err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.Warnf("config: watcher error: %v", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
