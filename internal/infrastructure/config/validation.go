package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks the daemon configuration against its struct tags plus
// the cross-field rules tags cannot express.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator for daemon configuration structs.
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// Validate runs tag validation and returns one aggregated error listing
// every offending field, so a misconfigured daemon reports all problems
// in a single startup failure.
func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

func (v *Validator) formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var messages []string
	for _, e := range validationErrs {
		messages = append(messages, fmt.Sprintf(
			"%s: does not satisfy %q (got %v)",
			e.Namespace(), e.Tag(), e.Value(),
		))
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(messages, "\n  "))
}

// ValidateConfig checks the full daemon configuration: struct tags first,
// then the connection rules for the journal database.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	if err := v.Validate(cfg); err != nil {
		return err
	}

	switch cfg.Database.Type {
	case "postgres":
		if cfg.Database.URL == "" && cfg.Database.Host == "" {
			return fmt.Errorf("invalid configuration: database.type is postgres but neither database.url nor database.host is set")
		}
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("invalid configuration: database.type is sqlite but database.path is empty")
		}
	}
	return nil
}
