// Package config loads environment defaults for command-line options.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds the environment variables dgtool understands. Flags always win
// over these values.
type Env struct {
	NDK         string        `env:"ANDROID_NDK_HOME"`
	SDKRoot     string        `env:"ANDROID_SDK_ROOT"`
	AndroidHome string        `env:"ANDROID_HOME"`
	Gradle      string        `env:"GRADLE_BIN"`
	APILevel    string        `env:"DGTOOL_API_LEVEL"`
	ToolTimeout time.Duration `env:"DGTOOL_TOOL_TIMEOUT" envDefault:"0s"`
	NoAnimation bool          `env:"DGTOOL_NO_ANIMATION"`
}

// SDK returns ANDROID_SDK_ROOT, falling back to the older ANDROID_HOME.
func (e Env) SDK() string {
	if e.SDKRoot != "" {
		return e.SDKRoot
	}
	return e.AndroidHome
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseEnvMap loads configuration from an explicit variable map instead of
// the process environment.
func ParseEnvMap(target any, vars map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{Environment: vars}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads Env from the process environment.
func Load() (Env, error) {
	var e Env
	if err := ParseEnv(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}
