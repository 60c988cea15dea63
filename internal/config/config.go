// Package config provides configuration management for the bridge.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the bridge.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Art-Net ingress
	ArtNetPort int
	Universe   int

	// DMX output
	Channels int           // slots the UART path transmits (1-512)
	Delay    time.Duration // minimum spacing between output frames

	// Transports
	UARTEnabled   bool
	SerialDevice  string
	I2SEnabled    bool
	I2SOutputPath string // file or device the shift stream is written to
	I2SSafeTiming bool   // long break/mark padding for picky fixtures

	// Diagnostics
	StatsInterval time.Duration

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "9090"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./bridge.db"),

		// Art-Net
		ArtNetPort: getEnvInt("ARTNET_PORT", 6454),
		Universe:   getEnvInt("ARTNET_UNIVERSE", 0),

		// DMX output
		Channels: getEnvInt("DMX_CHANNELS", 512),
		Delay:    time.Duration(getEnvInt("DMX_DELAY_MS", 25)) * time.Millisecond,

		// Transports
		UARTEnabled:   getEnvBool("DMX_UART_ENABLED", true),
		SerialDevice:  getEnv("DMX_SERIAL_DEVICE", "/dev/ttyUSB0"),
		I2SEnabled:    getEnvBool("DMX_I2S_ENABLED", false),
		I2SOutputPath: getEnv("DMX_I2S_OUTPUT", ""),
		I2SSafeTiming: getEnvBool("DMX_I2S_SAFE_TIMING", true),

		// Diagnostics
		StatsInterval: time.Duration(getEnvInt("STATS_INTERVAL_MS", 10000)) * time.Millisecond,

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
