package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/cataloghq/catalog-backend/internal/logger"
)

func GetEnv(key, fallback string, log *logger.Logger) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		if log != nil {
			log.Debug("Env var unset, using fallback", "key", key, "fallback", fallback)
		}
		return fallback
	}
	return val
}

func GetEnvAsInt(key string, fallback int, log *logger.Logger) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		if log != nil {
			log.Warn("Env var is not an integer, using fallback", "key", key, "value", val, "fallback", fallback)
		}
		return fallback
	}
	return i
}

func GetEnvAsBool(key string, fallback bool, log *logger.Logger) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if val == "" {
		return fallback
	}
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if log != nil {
			log.Warn("Env var is not a boolean, using fallback", "key", key, "value", val, "fallback", fallback)
		}
		return fallback
	}
}
