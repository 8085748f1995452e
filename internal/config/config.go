// Package config resolves server and chat client settings.
//
// Every value is read with the same priority:
//  1. CLI flags (passed via options) - highest priority
//  2. Environment variables, optionally seeded from a .env file
//  3. Hardcoded defaults - lowest priority
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidServer   = errors.New("invalid server URL")
)

// loadDotEnv seeds the environment from ./.env when present. Variables that
// are already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// pick returns the first non-empty value of flag, the env variables in
// order, and def.
func pick(flag string, def string, envs ...string) string {
	if flag != "" {
		return flag
	}
	for _, key := range envs {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return def
}

func duration(flag time.Duration, env string, def time.Duration) (time.Duration, error) {
	if flag > 0 {
		return flag, nil
	}
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidDuration, env, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
