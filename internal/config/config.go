// Package config handles configuration loading, validation, and persistence
// for the Skeld room server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultTickRate   = 50
)

// Config is the root configuration structure for Skeld.
type Config struct {
	mu       sync.RWMutex
	path     string
	firstRun bool

	Room            RoomConfig      `json:"room"`
	ApplicationData ApplicationData `json:"application_data"`
}

// RoomConfig holds the settings every hosted room starts with.
type RoomConfig struct {
	// Simulation
	TickRateHz           int `json:"tick_rate_hz"`
	ReadyTimeoutSec      int `json:"ready_timeout_sec"`
	MeetingCloseDelaySec int `json:"meeting_close_delay_sec"`

	// Authority
	Authoritative  bool  `json:"authoritative"`
	ServerClientID int32 `json:"server_client_id"`

	// Pool
	MaxRooms int `json:"max_rooms"`

	// Game options
	DefaultMap    string `json:"default_map"`
	PresetsFile   string `json:"presets_file"`
	DefaultPreset string `json:"default_preset"`
}

// TickInterval returns the time between two room ticks.
func (r RoomConfig) TickInterval() time.Duration {
	if r.TickRateHz <= 0 {
		return time.Second / DefaultTickRate
	}
	return time.Second / time.Duration(r.TickRateHz)
}

func (r RoomConfig) ReadyTimeout() time.Duration {
	return time.Duration(r.ReadyTimeoutSec) * time.Second
}

func (r RoomConfig) MeetingCloseDelay() time.Duration {
	return time.Duration(r.MeetingCloseDelaySec) * time.Second
}

// ApplicationData contains service-level configuration.
type ApplicationData struct {
	API       APIConfig       `json:"api"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Storage   StorageConfig   `json:"storage"`
	Replay    ReplayConfig    `json:"replay"`
	Spectator SpectatorConfig `json:"spectator"`
	Security  SecurityConfig  `json:"security"`
	Logging   LoggingConfig   `json:"logging"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Port int `json:"port"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// StorageConfig holds the match history database settings.
type StorageConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ReplayConfig holds message recording settings.
type ReplayConfig struct {
	Enabled       bool   `json:"enabled"`
	Directory     string `json:"directory"`
	RetentionDays int    `json:"retention_days"`
	CleanupTime   string `json:"cleanup_time"` // HH:MM, local time
}

// SpectatorConfig holds the websocket spectator stream settings.
type SpectatorConfig struct {
	Enabled        bool   `json:"enabled"`
	Path           string `json:"path"`
	SendBufferSize int    `json:"send_buffer_size"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	APIToken       string   `json:"api_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level"`
	Directory string `json:"directory"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Room: RoomConfig{
			TickRateHz:           DefaultTickRate,
			ReadyTimeoutSec:      10,
			MeetingCloseDelaySec: 5,
			Authoritative:        true,
			ServerClientID:       0,
			MaxRooms:             32,
			DefaultMap:           "TheSkeld",
			PresetsFile:          "config/presets.yaml",
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Port: DefaultAPIPort,
			},
			MQTT: MQTTConfig{
				Enabled:     false,
				BrokerURL:   "localhost",
				Port:        1883,
				ClientID:    "skeld",
				TopicPrefix: "skeld",
			},
			Storage: StorageConfig{
				Enabled: true,
				Path:    "data/skeld.db",
			},
			Replay: ReplayConfig{
				Enabled:       false,
				Directory:     "replays",
				RetentionDays: 7,
				CleanupTime:   "04:00",
			},
			Spectator: SpectatorConfig{
				Enabled:        true,
				Path:           "/ws/rooms",
				SendBufferSize: 64,
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
			},
			Logging: LoggingConfig{
				Level:     "info",
				Directory: "logs",
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			cfg.firstRun = true
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json always lists every option.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetRoom returns a copy of the room configuration.
func (c *Config) GetRoom() RoomConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Room
}

// SetRoom updates the room configuration.
func (c *Config) SetRoom(room RoomConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Room = room
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application data configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// UpdateRoomField updates a single room setting by its JSON key.
func (c *Config) UpdateRoomField(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return updateField(&c.Room, key, value)
}

// UpdateAppField updates a single application setting by its JSON key.
func (c *Config) UpdateAppField(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return updateField(&c.ApplicationData, key, value)
}

func updateField[T any](target *T, key string, value any) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal section: %w", err)
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode section: %w", err)
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown field %s", key)
	}
	m[key] = value

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	var next T
	if err := json.Unmarshal(updated, &next); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	*target = next
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes the configuration.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun reports whether Load had to create the config file.
func (c *Config) IsFirstRun() bool {
	return c.firstRun
}
