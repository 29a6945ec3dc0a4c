package model

import (
	"errors"
	"fmt"
)

// SchemaError reports an input table whose shape is wrong: a missing column
// or bucket, a bad cell, or identifiers that are duplicated or do not line up
// across the aligned tables.
type SchemaError struct {
	Table  string
	Column string
	Unit   string
	Reason string
}

func (e *SchemaError) Error() string {
	msg := "schema error"
	if e.Table != "" {
		msg += " in " + e.Table
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	if e.Unit != "" {
		msg += fmt.Sprintf(" unit %q", e.Unit)
	}
	return msg + ": " + e.Reason
}

// NewSchemaError builds a SchemaError for a table-level problem.
func NewSchemaError(table, reason string, args ...any) *SchemaError {
	return &SchemaError{Table: table, Reason: fmt.Sprintf(reason, args...)}
}

// ConfigurationError reports settings that make a computation undefined,
// such as a non-positive threshold or too few spatial units.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError builds a ConfigurationError for the given field.
func NewConfigurationError(field, reason string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// IsSchema reports whether err or any error in its chain is a SchemaError.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsConfiguration reports whether err or any error in its chain is a
// ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// DegenerateRatio flags a supply unit whose catchment holds no weighted
// demand. It is not an error: the run continues and the cell carries a +Inf
// sentinel that callers must filter or present explicitly. Units in reach of
// such a supply unit carry the sentinel too; their entry names it as Source.
type DegenerateRatio struct {
	Unit     string  `json:"unit"`
	Category string  `json:"category"`
	Supply   float64 `json:"supply"`
	Source   string  `json:"source,omitempty"`
}

func (d DegenerateRatio) String() string {
	if d.Source != "" {
		return fmt.Sprintf("degenerate ratio: unit %q category %q in reach of unit %q (supply %g, zero catchment demand)", d.Unit, d.Category, d.Source, d.Supply)
	}
	return fmt.Sprintf("degenerate ratio: unit %q category %q supply %g with zero catchment demand", d.Unit, d.Category, d.Supply)
}
