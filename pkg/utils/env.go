package utils

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// secretEnvKeys are never echoed when they are substituted into a config file.
var secretEnvKeys = []string{"BUYER_PRIVATE_KEY", "FACILITATOR_API_KEY_SECRET", "DATABASE_URL"}

// GetEnv retrieves an environment variable or returns a default value if not set
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ExpandEnvVars expands ${VAR} references in a string.
// Substituted secrets are reported masked at debug level.
func ExpandEnvVars(s string) string {
	for _, key := range secretEnvKeys {
		if !strings.Contains(s, "${"+key+"}") {
			continue
		}
		if val := os.Getenv(key); val != "" {
			logrus.Debugf("Config substitution: ${%s} -> %s", key, MaskSecret(val))
		}
	}
	return os.ExpandEnv(s)
}

// MaskSecret keeps the first few characters of a secret and hides the rest.
func MaskSecret(s string) string {
	visible := Min(6, len(s)/4)
	return s[:visible] + strings.Repeat("*", Min(8, len(s)-visible))
}

// Min returns the smaller of two integers
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// BoolFromEnv converts an environment variable to a boolean
// "true", "yes", "1", "on" are considered true (case-insensitive)
// Any other value is considered false
func BoolFromEnv(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}

	switch strings.ToLower(val) {
	case "true", "yes", "1", "on":
		return true
	default:
		return false
	}
}

// IntFromEnv parses an integer environment variable. Malformed values are
// reported and the default is kept.
func IntFromEnv(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logrus.Warnf("Invalid %s: %s", key, val)
		return defaultVal
	}
	return n
}

// DurationFromEnv parses a Go duration string ("15s", "2m") from the environment.
func DurationFromEnv(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		logrus.Warnf("Invalid %s: %s", key, val)
		return defaultVal
	}
	return d
}
