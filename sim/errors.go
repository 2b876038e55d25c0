package sim

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration = errors.New("execution profile misconfigured")
	ErrMissingQuote  = errors.New("missing quote")
)

// ConfigError 指出某个 profile 的哪个字段缺失或越界。
type ConfigError struct {
	Profile string
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Profile == "" {
		return fmt.Sprintf("%s: %s %s", ErrConfiguration, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: profile %s: %s %s", ErrConfiguration, e.Profile, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErr(profile, field, reason string) error {
	return &ConfigError{Profile: profile, Field: field, Reason: reason}
}
