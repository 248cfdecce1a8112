package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetListEnv returns a comma-separated environment variable as a slice.
// A value that parses to nothing (blanks, bare commas) falls back to the
// default as well.
func GetListEnv(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return defaultVal
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// MustGetEnv returns an environment variable or exits. Used for operator
// wallets and key material, where a missing value is a process-level
// configuration fault rather than a per-record error.
func MustGetEnv(key string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		log.Fatalf("required environment variable %s is not set", key)
	}
	return val
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// Chains returns the EVM chains the workers should run against.
func Chains() []string {
	return GetListEnv("CHAINS", []string{"polygon"})
}

// IndexAssets returns the supported index assets for the investment
// product. The accounting engine is symbol-agnostic; this only bounds
// what users may invest into.
func IndexAssets() []string {
	return GetListEnv("INDEX_ASSETS", []string{"BTC"})
}
