package modrt

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/go-modrt/container"
	"github.com/albertocavalcante/go-modrt/manifest"
)

// Sentinel errors.
var (
	// ErrManifest matches every malformed or invalid bundle manifest.
	ErrManifest = manifest.ErrManifest

	// ErrInvalidOperation matches operations not allowed in the current
	// state.
	ErrInvalidOperation = container.ErrInvalidOperation

	// ErrNotInitialized is returned by operations that need Init first.
	ErrNotInitialized = errors.New("framework is not initialized")

	// ErrInvalidConfig matches every ConfigError.
	ErrInvalidConfig = errors.New("invalid framework configuration")
)

// ConfigError reports an invalid framework property.
type ConfigError struct {
	Key    string
	Value  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid framework property %s=%q: %s", e.Key, e.Value, e.Detail)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

func configError(key, value, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Value: value, Detail: fmt.Sprintf(format, args...)}
}
