// Package config loads cache engine configuration from YAML or JSON,
// expanding environment references before decoding.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wilson323/llmchat-sub005/domain/config"
)

// Format identifies a configuration encoding.
type Format string

const (
	// FormatYAML is the YAML encoding.
	FormatYAML Format = "yaml"
	// FormatJSON is the JSON encoding.
	FormatJSON Format = "json"
)

// formatForPath maps a config file extension to its Format.
func formatForPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, ext)
	}
}

// decode unmarshals raw config bytes into cfg.
func (f Format) decode(data []byte, cfg *config.EngineConfig) error {
	switch f {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	default:
		return fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, f)
	}
	return nil
}

// Loader decodes engine configuration. By default it expands
// environment references leniently and validates the decoded config.
type Loader struct {
	expandEnv bool
	strictEnv bool
	validate  bool
}

// NewLoader creates a loader with the default settings.
func NewLoader() *Loader {
	return &Loader{
		expandEnv: true,
		validate:  true,
	}
}

// LoaderOption configures the loader.
type LoaderOption func(*Loader)

// WithEnvExpansion enables or disables environment reference expansion.
func WithEnvExpansion(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.expandEnv = enabled
	}
}

// WithStrictEnv makes references to unset environment variables an
// error.
func WithStrictEnv(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.strictEnv = enabled
	}
}

// WithValidation enables or disables validation of the decoded config.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.validate = enabled
	}
}

// NewLoaderWithOptions creates a loader with the given options applied
// over the defaults.
func NewLoaderWithOptions(opts ...LoaderOption) *Loader {
	l := NewLoader()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile loads engine configuration from a file, picking the
// encoding by extension.
func (l *Loader) LoadFile(path string) (*config.EngineConfig, error) {
	format, err := formatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return l.load(data, format)
}

// LoadString loads engine configuration from a string.
func (l *Loader) LoadString(content string, format Format) (*config.EngineConfig, error) {
	return l.load([]byte(content), format)
}

func (l *Loader) load(data []byte, format Format) (*config.EngineConfig, error) {
	if l.expandEnv {
		expanded, err := expandVars(string(data), l.strictEnv)
		if err != nil {
			return nil, err
		}
		data = []byte(expanded)
	}

	cfg := &config.EngineConfig{}
	if err := format.decode(data, cfg); err != nil {
		return nil, err
	}

	if l.validate {
		if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
			return nil, fmt.Errorf("%w: %v", config.ErrValidationFailed, errs)
		}
	}
	return cfg, nil
}
