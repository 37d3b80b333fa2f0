// Package config handles loading, defaulting, and validation of the greenroom
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Companion CompanionConfig `toml:"companion" json:"companion"`
	Socket    SocketConfig    `toml:"socket"    json:"socket"`
	Uploads   UploadsConfig   `toml:"uploads"   json:"uploads"`
	Events    EventsConfig    `toml:"events"    json:"events"`
	Network   NetworkConfig   `toml:"network"   json:"network"`
	Storage   StorageConfig   `toml:"storage"   json:"storage"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
}

// CompanionConfig points the client at the desktop companion daemon.
type CompanionConfig struct {
	URL        string `toml:"url"         json:"url"`
	DeviceName string `toml:"device_name" json:"device_name"`
}

// SocketConfig tunes the WebSocket connection state machine.
type SocketConfig struct {
	HeartbeatSeconds  int     `toml:"heartbeat_seconds"  json:"heartbeat_seconds"`
	AutoReconnect     bool    `toml:"auto_reconnect"     json:"auto_reconnect"`
	BackoffBaseMs     int     `toml:"backoff_base_ms"    json:"backoff_base_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" json:"backoff_multiplier"`
	BackoffCapMs      int     `toml:"backoff_cap_ms"     json:"backoff_cap_ms"`
	MaxReconnects     int     `toml:"max_reconnects"     json:"max_reconnects"`
}

// UploadsConfig tunes the offline upload queue.
type UploadsConfig struct {
	RetryLimit     int `toml:"retry_limit"     json:"retry_limit"`
	TimeoutSeconds int `toml:"timeout_seconds" json:"timeout_seconds"`
}

// EventsConfig tunes the event dispatcher's bounded histories.
type EventsConfig struct {
	HistoryCap int `toml:"history_cap" json:"history_cap"`
}

// NetworkConfig tunes the connectivity probe.
type NetworkConfig struct {
	ProbeIntervalSeconds int `toml:"probe_interval_seconds" json:"probe_interval_seconds"`
	ProbeTimeoutSeconds  int `toml:"probe_timeout_seconds"  json:"probe_timeout_seconds"`
}

type StorageConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (s SocketConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatSeconds) * time.Second
}

// BackoffBase returns the initial reconnect delay as a duration.
func (s SocketConfig) BackoffBase() time.Duration {
	return time.Duration(s.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the maximum reconnect delay as a duration.
func (s SocketConfig) BackoffCap() time.Duration {
	return time.Duration(s.BackoffCapMs) * time.Millisecond
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	root := "/var/lib/greenroom"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".local", "share", "greenroom")
	}
	return Config{
		Companion: CompanionConfig{
			URL:        "http://127.0.0.1:8787",
			DeviceName: "greenroom",
		},
		Socket: SocketConfig{
			HeartbeatSeconds:  20,
			AutoReconnect:     true,
			BackoffBaseMs:     1000,
			BackoffMultiplier: 2,
			BackoffCapMs:      30000,
			MaxReconnects:     5,
		},
		Uploads: UploadsConfig{
			RetryLimit:     3,
			TimeoutSeconds: 120,
		},
		Events: EventsConfig{
			HistoryCap: 500,
		},
		Network: NetworkConfig{
			ProbeIntervalSeconds: 5,
			ProbeTimeoutSeconds:  3,
		},
		Storage: StorageConfig{
			Root: root,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to the defaults when no
// config file exists at path. Parse and validation errors are still reported.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil && os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

func validate(cfg Config) error {
	if cfg.Companion.URL == "" {
		return errors.New("companion.url must not be empty")
	}
	if cfg.Socket.HeartbeatSeconds <= 0 {
		return errors.New("socket.heartbeat_seconds must be > 0")
	}
	if cfg.Socket.BackoffBaseMs <= 0 {
		return errors.New("socket.backoff_base_ms must be > 0")
	}
	if cfg.Socket.BackoffMultiplier < 1 {
		return errors.New("socket.backoff_multiplier must be >= 1")
	}
	if cfg.Socket.BackoffCapMs < cfg.Socket.BackoffBaseMs {
		return errors.New("socket.backoff_cap_ms must be >= socket.backoff_base_ms")
	}
	if cfg.Socket.MaxReconnects < 0 {
		return errors.New("socket.max_reconnects must be >= 0")
	}
	if cfg.Uploads.RetryLimit < 1 {
		return errors.New("uploads.retry_limit must be >= 1")
	}
	if cfg.Uploads.TimeoutSeconds <= 0 {
		return errors.New("uploads.timeout_seconds must be > 0")
	}
	if cfg.Events.HistoryCap < 1 {
		return errors.New("events.history_cap must be >= 1")
	}
	if cfg.Network.ProbeIntervalSeconds <= 0 {
		return errors.New("network.probe_interval_seconds must be > 0")
	}
	if cfg.Network.ProbeTimeoutSeconds <= 0 {
		return errors.New("network.probe_timeout_seconds must be > 0")
	}
	if cfg.Storage.Root == "" {
		return errors.New("storage.root must not be empty")
	}
	return nil
}
