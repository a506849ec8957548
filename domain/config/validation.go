package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates engine configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *EngineConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateVolatile(config)
	v.validateDurable(config)
	v.validateRemote(config)
	v.validateSync(config)
	v.validateLog(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *EngineConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateVolatile(config *EngineConfig) {
	if config.Volatile.MaxSize < 0 {
		v.addError("volatile.max_size", "max_size must be non-negative")
	}
	if config.Volatile.MaxEntries < 0 {
		v.addError("volatile.max_entries", "max_entries must be non-negative")
	}
}

func (v *Validator) validateDurable(config *EngineConfig) {
	switch config.Durable.Backend {
	case "", "badger", "sqlite":
	default:
		v.addError("durable.backend", fmt.Sprintf("unknown backend: %s", config.Durable.Backend))
	}

	if config.Durable.Backend == "badger" && !config.Durable.InMemory && config.Durable.Dir == "" {
		v.addError("durable.dir", "dir is required for the badger backend")
	}
	if config.Durable.Backend == "sqlite" && config.Durable.DSN == "" {
		v.addError("durable.dsn", "dsn is required for the sqlite backend")
	}

	if config.Durable.MaxSize < 0 {
		v.addError("durable.max_size", "max_size must be non-negative")
	}
	if config.Durable.MaxEntries < 0 {
		v.addError("durable.max_entries", "max_entries must be non-negative")
	}
	if config.Durable.Quota < 0 {
		v.addError("durable.quota", "quota must be non-negative")
	}
}

func (v *Validator) validateRemote(config *EngineConfig) {
	if !config.Remote.Enabled {
		return
	}
	if config.Remote.Address == "" {
		v.addError("remote.address", "address is required when remote replication is enabled")
	}
	if config.Remote.DB < 0 {
		v.addError("remote.db", "db must be non-negative")
	}
}

func (v *Validator) validateSync(config *EngineConfig) {
	if !config.Sync.Enabled {
		return
	}
	if config.Sync.MaxAttempts < 0 {
		v.addError("sync.max_attempts", "max_attempts must be non-negative")
	}
	if config.Sync.Multiplier != 0 && config.Sync.Multiplier < 1 {
		v.addError("sync.multiplier", "multiplier must be >= 1")
	}
	if config.Sync.BatchSize < 0 {
		v.addError("sync.batch_size", "batch_size must be non-negative")
	}
	if config.Sync.MaxInterval != 0 && config.Sync.MaxInterval < config.Sync.Interval {
		v.addError("sync.max_interval", "max_interval must be >= interval")
	}
}

func (v *Validator) validateLog(config *EngineConfig) {
	if config.Log.Level != "" {
		validLevels := map[string]bool{
			"trace": true, "debug": true, "info": true, "warn": true, "error": true,
		}
		if !validLevels[strings.ToLower(config.Log.Level)] {
			v.addError("log.level", fmt.Sprintf("invalid level: %s", config.Log.Level))
		}
	}
	if config.Log.Format != "" {
		validFormats := map[string]bool{"json": true, "console": true}
		if !validFormats[strings.ToLower(config.Log.Format)] {
			v.addError("log.format", fmt.Sprintf("invalid format: %s", config.Log.Format))
		}
	}
}
