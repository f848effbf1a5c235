package utils

import (
	"math/rand"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// LoadEnv loads .env.<env> (when env is set), then .env.local and .env.
// Variables already present in the process environment win.
func LoadEnv(env string) error {
	files := []string{}
	if env != "" {
		files = append(files, ".env."+env)
	}
	files = append(files, ".env.local", ".env")

	var loaded bool
	var lastErr error
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			lastErr = err
			continue
		}
		loaded = true
	}
	if !loaded && lastErr == nil {
		return os.ErrNotExist
	}
	return lastErr
}

func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetBoolEnv accepts 1/true/yes/on (case-insensitive).
func GetBoolEnv(key string) bool {
	switch strings.ToLower(GetEnv(key)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func GetIntEnv(key string) int64 {
	return cast.ToInt64(GetEnv(key))
}

func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(GetEnv(key))
}

// RandText returns n random alphanumerics. Not for secrets.
func RandText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
