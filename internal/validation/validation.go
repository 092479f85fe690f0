package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/arthur-debert/nanotree/types"
)

const maxWorkers = 256

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateConfig checks a tree configuration for consistency. Defaults must
// already be applied.
func ValidateConfig(cfg types.Config) error {
	if err := ValidateSeparator(cfg.PathSeparator); err != nil {
		return err
	}

	switch cfg.OnDelete {
	case types.DeleteSubtree, types.ReparentChildren:
	default:
		return fmt.Errorf("invalid onDelete policy %q (expected %s or %s)", cfg.OnDelete, types.DeleteSubtree, types.ReparentChildren)
	}

	if cfg.NumWorkers < 1 || cfg.NumWorkers > maxWorkers {
		return fmt.Errorf("numWorkers must be between 1 and %d, got %d", maxWorkers, cfg.NumWorkers)
	}

	switch cfg.IDType {
	case types.IDTypeUUID, types.IDTypeObjectID:
	default:
		return fmt.Errorf("invalid idType %q", cfg.IDType)
	}

	if cfg.PositionField != "" {
		if !fieldNamePattern.MatchString(cfg.PositionField) {
			return fmt.Errorf("position field %q is not a valid field name", cfg.PositionField)
		}
		if IsReservedFieldName(cfg.PositionField) && cfg.PositionField != types.FieldPosition {
			return fmt.Errorf("position field %q is a reserved field name", cfg.PositionField)
		}
	}

	return nil
}

// ValidateSeparator ensures the separator is a single character that can
// never appear inside a generated identifier
func ValidateSeparator(sep string) error {
	if utf8.RuneCountInString(sep) != 1 {
		return fmt.Errorf("path separator must be exactly one character, got %q", sep)
	}
	r, _ := utf8.DecodeRuneInString(sep)
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || unicode.IsSpace(r) {
		return fmt.Errorf("path separator %q may appear in identifiers", sep)
	}
	return nil
}

// ValidateID ensures an identifier can be used as a path segment
func ValidateID(id, sep string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.Contains(id, sep) {
		return fmt.Errorf("id %q contains the path separator %q", id, sep)
	}
	return nil
}

// ValidateFieldName checks a data field name used in filters, sorts and
// projections. Adapters that embed field names in queries rely on it.
func ValidateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

// IsReservedFieldName checks if a name is one of the canonical node fields
func IsReservedFieldName(name string) bool {
	switch strings.ToLower(name) {
	case types.FieldID, "_id", types.FieldParent, types.FieldPath, types.FieldPosition,
		types.FieldCreatedAt, types.FieldUpdatedAt, "data", "children":
		return true
	}
	return false
}
