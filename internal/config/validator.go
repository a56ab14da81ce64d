package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rohankatakam/graphogm/internal/errors"
)

var validate = validator.New()

// ValidationContext specifies what configuration is required
type ValidationContext string

const (
	// ValidationContextOffline - compiling statements needs no database
	ValidationContextOffline ValidationContext = "offline"
	// ValidationContextDatabase - executing statements requires Neo4j credentials
	ValidationContextDatabase ValidationContext = "database"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString("  - ")
		sb.WriteString(err)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Err returns the result as a config error, nil when valid
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigError(strings.TrimSpace(vr.Error()))
}

// Validate validates the sections ctx needs
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	check(result, "hydration", c.Hydration)
	check(result, "query", c.Query)
	check(result, "logging", c.Logging)
	if ctx == ValidationContextDatabase {
		check(result, "neo4j", c.Neo4j)
	}
	return result
}

func check(result *ValidationResult, section string, s any) {
	err := validate.Struct(s)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		result.AddError("%s: %v", section, err)
		return
	}
	for _, fe := range verrs {
		result.AddError("%s.%s failed %q (value %v)", section, fe.Field(), fieldRule(fe), fe.Value())
	}
}

func fieldRule(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
