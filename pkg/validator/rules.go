package validator

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Required fails on an empty or whitespace-only string.
func Required(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{
			Field:   field,
			Message: "field is required",
			Code:    "validation.required",
		},
	}
}

// MaxLen fails when value has more than max characters.
func MaxLen(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters long", max),
			Code:    "validation.max_length",
		},
	}
}

// OneOf fails when value is not among options.
func OneOf[T comparable](field string, value T, options []T) Rule {
	return Rule{
		Check: func() bool { return slices.Contains(options, value) },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be one of: %v", options),
			Code:    "validation.one_of",
		},
	}
}

// MinNum fails when value is below min.
func MinNum[T Numeric](field string, value, min T) Rule {
	return Rule{
		Check: func() bool { return value >= min },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at least %v", min),
			Code:    "validation.min",
		},
	}
}

// UUID fails when value does not parse as a UUID.
func UUID(field, value string) Rule {
	return Rule{
		Check: func() bool { return uuid.Validate(value) == nil },
		Error: ValidationError{
			Field:   field,
			Message: "must be a valid UUID",
			Code:    "validation.uuid",
		},
	}
}

// MaxItems fails when items has more than max elements.
func MaxItems[T any](field string, items []T, max int) Rule {
	return Rule{
		Check: func() bool { return len(items) <= max },
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must contain at most %d items", max),
			Code:    "validation.max_items",
		},
	}
}
