package api

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var errInvalidPayload = errors.New("invalid payload")

// validateRows validates every element and reports the first failing index.
func validateRows[T any](rows []T) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: at least one row is required", errInvalidPayload)
	}
	for i := range rows {
		if err := validate.Struct(rows[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}
