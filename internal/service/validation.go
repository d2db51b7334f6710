package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateInput checks struct tags and reports the first failing field as a validation error.
func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		var validationErr validator.ValidationErrors
		if errors.As(err, &validationErr) {
			first := validationErr[0]
			switch first.Tag() {
			case "required":
				return domain.Validationf("%s is required", fieldName(first))
			case "email":
				return domain.Validationf("%s must be a valid email", fieldName(first))
			case "gte":
				return domain.Validationf("%s must be at least %s", fieldName(first), first.Param())
			case "max":
				return domain.Validationf("%s must be at most %s characters", fieldName(first), first.Param())
			}
			return domain.Validationf("%s is invalid", fieldName(first))
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func fieldName(fe validator.FieldError) string {
	var b strings.Builder
	for i, r := range fe.Field() {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
