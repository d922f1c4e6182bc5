package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration guarding the admin endpoints.
type Config struct {
	AuthType        string // "none" disables the admin endpoints, "jwt" enables them
	JwtSecret       []byte
	AdminRole       string
	TokenExpiration time.Duration
}

// NewConfig initializes the authentication configuration from environment variables.
func NewConfig() (*Config, error) {
	authConfig := &Config{
		AuthType:  strings.ToLower(getEnv("AUTH_TYPE", "none")),
		AdminRole: getEnv("ADMIN_ROLE", "admin"),
	}

	switch authConfig.AuthType {
	case "none":
		return authConfig, nil
	case "jwt":
	default:
		return nil, fmt.Errorf("unsupported AUTH_TYPE '%s'", authConfig.AuthType)
	}

	jwtSecret, err := getEnvBytes("JWT_SECRET")
	if err != nil {
		return nil, fmt.Errorf("error loading JWT_SECRET: %w", err)
	}
	if len(jwtSecret) < 16 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	authConfig.JwtSecret = jwtSecret

	authConfig.TokenExpiration, err = parseDurationString(getEnv("TOKEN_EXPIRATION", "hours=1"))
	if err != nil {
		return nil, fmt.Errorf("error parsing TOKEN_EXPIRATION: %w", err)
	}

	return authConfig, nil
}

// Enabled reports whether admin endpoints are served.
func (c *Config) Enabled() bool {
	return c != nil && c.AuthType == "jwt"
}

// getEnv retrieves the value of the environment variable named by the key.
// It returns the value, or the defaultValue if the variable is not present.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvBytes retrieves the byte slice value of the environment variable named by the key.
// It returns the byte slice, or an error if the variable is not set.
func getEnvBytes(key string) ([]byte, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return nil, fmt.Errorf("environment variable %s not set", key)
	}
	return []byte(value), nil
}

// parseDurationString parses a duration string formatted as "minutes=1, hours=2, days=3, seconds=30"
func parseDurationString(s string) (time.Duration, error) {
	parts := strings.Split(s, ",")
	var totalDuration time.Duration

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyValue := strings.SplitN(part, "=", 2)
		if len(keyValue) != 2 {
			return 0, fmt.Errorf("invalid format for part: '%s'", part)
		}
		key := strings.ToLower(strings.TrimSpace(keyValue[0]))
		valueStr := strings.TrimSpace(keyValue[1])
		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: '%s'", key, valueStr)
		}

		switch key {
		case "minutes":
			totalDuration += time.Duration(value) * time.Minute
		case "hours":
			totalDuration += time.Duration(value) * time.Hour
		case "days":
			totalDuration += time.Duration(value) * 24 * time.Hour
		case "seconds":
			totalDuration += time.Duration(value) * time.Second
		default:
			return 0, fmt.Errorf("unknown time unit: '%s'", key)
		}
	}

	return totalDuration, nil
}
