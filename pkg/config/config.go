// Package config loads asyfig settings from a TOML file and the environment.
//
// Settings are resolved in order of precedence:
//
//  1. The ASYFIG_COMPILER environment variable (compiler path only)
//  2. The config file (~/.config/asyfig/config.toml, or $XDG_CONFIG_HOME)
//  3. Built-in defaults
//
// The resolved values are passed explicitly into the render pipeline; nothing
// under pkg/render reads the environment or the filesystem for configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// appName is the application name used for config directories.
	appName = "asyfig"

	// EnvCompiler is the environment variable that overrides the compiler path.
	EnvCompiler = "ASYFIG_COMPILER"

	// DefaultCompiler is the executable name looked up on PATH when no
	// compiler is configured.
	DefaultCompiler = "asy"

	// DefaultFormat is the output format used when none is configured.
	DefaultFormat = "png"

	// DefaultStderrLimit is the byte bound for stderr excerpts in
	// user-facing failure messages.
	DefaultStderrLimit = 2048
)

// Config holds the user-configurable settings.
type Config struct {
	// Compiler is the path or name of the Asymptote executable.
	Compiler string `toml:"compiler"`

	// Format is the default output format (png, jpg, gif, tiff, svg, pdf, eps).
	Format string `toml:"format"`

	// TimeoutSeconds bounds a single compiler run. Zero means unbounded,
	// which is the base behavior.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// StderrLimit is the maximum stderr excerpt length in failure messages.
	StderrLimit int `toml:"stderr_limit"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Compiler:    DefaultCompiler,
		Format:      DefaultFormat,
		StderrLimit: DefaultStderrLimit,
	}
}

// Load reads a config file from path, filling unset fields with defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	// An explicitly empty field falls back to its default.
	if cfg.Compiler == "" {
		cfg.Compiler = DefaultCompiler
	}
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = DefaultStderrLimit
	}
	return cfg, nil
}

// LoadDefault loads the config file from the XDG config location.
func LoadDefault() (Config, error) {
	dir, err := configDir()
	if err != nil {
		return Default(), nil
	}
	return Load(filepath.Join(dir, "config.toml"))
}

// ResolveCompiler returns the compiler executable to invoke, applying the
// environment override on top of the config value.
func (c Config) ResolveCompiler() string {
	if env := os.Getenv(EnvCompiler); env != "" {
		return env
	}
	if c.Compiler != "" {
		return c.Compiler
	}
	return DefaultCompiler
}

// configDir returns the config directory using XDG standard (~/.config/asyfig/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}
