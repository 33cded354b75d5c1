package application

import (
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-compass/internal/domain"
)

// RegisterCompassValidators registers custom validation functions with
// the validator instance for use in scoring configuration validation.
// RegisterCompassValidators adds the semver and stanceset validators
// that can be referenced in struct tags for automated validation.
// RegisterCompassValidators returns an error if any validator registration
// fails.
func RegisterCompassValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}

	if err := v.RegisterValidation("stanceset", validateStanceSet); err != nil {
		return fmt.Errorf("failed to register stanceset validator: %w", err)
	}

	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0 &&
		value == fmt.Sprintf("%d.%d.%d", major, minor, patch)
}

// validateStanceSet validates that a []float64 can form a domain.Scale.
func validateStanceSet(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}

	stances := make([]float64, field.Len())
	for i := range field.Len() {
		elem := field.Index(i)
		if !elem.CanFloat() {
			return false
		}
		stances[i] = elem.Float()
	}

	_, err := domain.NewScale(stances, true)
	return err == nil
}
