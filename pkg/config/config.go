package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"

	"github.com/rubiojr/theme-switcher/pkg/ipc"
	"github.com/rubiojr/theme-switcher/pkg/script"
	"github.com/rubiojr/theme-switcher/pkg/source"
)

//go:embed config.toml.sample
var configTemplate string

type Config struct {
	General   GeneralConfig `toml:"general"`
	IPC       IPCConfig     `toml:"ipc"`
	Source    SourceConfig  `toml:"source"`
	Scripts   ScriptsConfig `toml:"scripts"`
	JSScripts ScriptsConfig `toml:"js_scripts"`
	Metrics   MetricsConfig `toml:"metrics"`
}

type GeneralConfig struct {
	Quiet   bool   `toml:"quiet"`
	Debug   bool   `toml:"debug"`
	LogFile string `toml:"log_file,omitempty"`
}

type IPCConfig struct {
	Enabled    bool   `toml:"enabled"`
	SocketPath string `toml:"socket_path,omitempty"`
	LagPolicy  string `toml:"lag_policy,omitempty"`
	Buffer     int    `toml:"buffer,omitempty"`
}

type SourceConfig struct {
	Kind     string   `toml:"kind,omitempty"`
	File     string   `toml:"file,omitempty"`
	Command  string   `toml:"command,omitempty"`
	Interval Duration `toml:"interval,omitempty"`
}

type ScriptsConfig struct {
	Light   []string `toml:"light"`
	Dark    []string `toml:"dark"`
	Any     []string `toml:"any"`
	Timeout Duration `toml:"timeout,omitempty"`
}

type MetricsConfig struct {
	Addr string `toml:"addr,omitempty"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Set converts the script lists to a script.Set.
func (s ScriptsConfig) Set() script.Set {
	return script.Set{Light: s.Light, Dark: s.Dark, Any: s.Any}
}

// SourceOptions converts the [source] table.
func (c *Config) SourceOptions() source.Options {
	return source.Options{
		Kind:     c.Source.Kind,
		File:     c.Source.File,
		Command:  c.Source.Command,
		Interval: c.Source.Interval.Duration,
	}
}

// IPCOptions converts the [ipc] table.
func (c *Config) IPCOptions() (ipc.Options, error) {
	policy, err := ipc.ParseLagPolicy(c.IPC.LagPolicy)
	if err != nil {
		return ipc.Options{}, err
	}
	return ipc.Options{
		Path:      c.IPC.SocketPath,
		Buffer:    c.IPC.Buffer,
		LagPolicy: policy,
	}, nil
}

// Validate checks values that would otherwise fail late, at dispatch time.
func (c *Config) Validate() error {
	if _, err := ipc.ParseLagPolicy(c.IPC.LagPolicy); err != nil {
		return fmt.Errorf("ipc: %w", err)
	}
	if c.IPC.Buffer < 0 {
		return fmt.Errorf("ipc: buffer must not be negative")
	}
	switch c.Source.Kind {
	case "", source.KindAuto, source.KindPortal, source.KindFile, source.KindCommand:
	default:
		return fmt.Errorf("source: unknown kind %q", c.Source.Kind)
	}
	return nil
}

func GetDefaultConfig() *Config {
	return &Config{
		IPC:    IPCConfig{LagPolicy: string(ipc.LagResync), Buffer: 16},
		Source: SourceConfig{Kind: source.KindAuto, Interval: Duration{source.DefaultInterval}},
	}
}

// LoadConfig reads configPath. A missing file yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := GetDefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return config, nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return atomic.WriteFile(configPath, bytes.NewReader(data))
}

// SaveTemplateConfig writes the commented sample configuration. An existing
// file is left untouched.
func SaveTemplateConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file %s already exists", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return atomic.WriteFile(configPath, bytes.NewBufferString(configTemplate))
}

// GetConfigDir returns $XDG_CONFIG_HOME/theme-switcher, falling back to
// ~/.config/theme-switcher.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "theme-switcher"), nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
