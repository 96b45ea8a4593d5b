package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/skeld-project/skeld/internal/content"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateRoom(&cfg.Room, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateRoom(room *RoomConfig, result *ValidationResult) {
	if room.TickRateHz < 1 || room.TickRateHz > 1000 {
		result.AddError("room.tick_rate_hz", "tick rate must be between 1 and 1000")
	} else if room.TickRateHz != DefaultTickRate {
		result.AddWarning("room.tick_rate_hz",
			fmt.Sprintf("tick rate %d differs from the %d Hz clients expect", room.TickRateHz, DefaultTickRate))
	}

	if room.ReadyTimeoutSec < 1 {
		result.AddError("room.ready_timeout_sec", "ready timeout must be at least 1 second")
	}
	if room.MeetingCloseDelaySec < 0 {
		result.AddError("room.meeting_close_delay_sec", "meeting close delay cannot be negative")
	}

	if room.MaxRooms < 1 {
		result.AddError("room.max_rooms", "must allow at least 1 room")
	}
	if room.MaxRooms > 500 {
		result.AddWarning("room.max_rooms",
			fmt.Sprintf("high room count (%d) may cause performance issues", room.MaxRooms))
	}

	if !room.Authoritative && room.ServerClientID != 0 {
		result.AddWarning("room.server_client_id", "server client id is ignored when not authoritative")
	}

	if _, ok := content.ParseMap(room.DefaultMap); !ok {
		result.AddError("room.default_map", fmt.Sprintf("unknown map: %s", room.DefaultMap))
	}

	if strings.TrimSpace(room.PresetsFile) != "" {
		if _, err := os.Stat(room.PresetsFile); os.IsNotExist(err) {
			result.AddWarning("room.presets_file",
				fmt.Sprintf("presets file does not exist: %s", room.PresetsFile))
		}
	} else if room.DefaultPreset != "" {
		result.AddError("room.default_preset", "default preset requires a presets file")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validatePort(data.API.Port, "application_data.api.port", result)

	// Replay recorder
	if data.Replay.Enabled {
		if strings.TrimSpace(data.Replay.Directory) == "" {
			result.AddError("application_data.replay.directory", "replay directory is required when enabled")
		}
		if data.Replay.RetentionDays < 1 {
			result.AddError("application_data.replay.retention_days",
				"retention days must be at least 1")
		}
	}

	// Storage
	if data.Storage.Enabled && strings.TrimSpace(data.Storage.Path) == "" {
		result.AddError("application_data.storage.path", "database path is required when storage is enabled")
	}

	// Spectators
	if data.Spectator.Enabled {
		if !strings.HasPrefix(data.Spectator.Path, "/") {
			result.AddError("application_data.spectator.path", "spectator path must start with /")
		}
		if data.Spectator.SendBufferSize < 1 {
			result.AddError("application_data.spectator.send_buffer_size", "send buffer must hold at least 1 frame")
		}
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if data.Security.APIToken == "" {
		result.AddWarning("application_data.security.api_token",
			"no API token set, control routes are open to anyone who can reach the port")
	}

	switch strings.ToLower(data.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "":
	default:
		result.AddError("application_data.logging.level", fmt.Sprintf("unknown log level: %s", data.Logging.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
