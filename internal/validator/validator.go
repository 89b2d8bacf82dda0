// Package validator checks request structs before they reach the engine.
// Failures come back as a VALIDATION_ERROR listing every offending field.
package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/slot-reservation/internal/apperror"
)

var decimalRegex = regexp.MustCompile(`^(?:\d+(?:\.\d{1,2})?|\.\d{1,2})$`)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails for an empty tag or nil func
	_ = v.RegisterValidation("decimal2", func(fl validator.FieldLevel) bool {
		return decimalRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return len(s) == 5 && s[2] == ':' && s[0] >= '0' && s[0] <= '2' && s[3] >= '0' && s[3] <= '5'
	})
	return &Validator{validate: v}
}

// Struct validates s and translates failures into an AppError.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(err.Error())
	}
	fields := translate(verrs)
	msgs := make([]string, len(fields))
	for i, f := range fields {
		msgs[i] = f.Message
	}
	return apperror.Validation(strings.Join(msgs, "; ")).WithDetails(map[string]any{"fields": fields})
}

func translate(errs validator.ValidationErrors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		field := err.Field()
		var msg string
		switch err.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", field)
		case "min":
			msg = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gt":
			msg = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		case "email":
			msg = fmt.Sprintf("%s must be a valid email", field)
		case "decimal2":
			msg = fmt.Sprintf("%s must be a decimal with at most 2 places", field)
		case "hhmm":
			msg = fmt.Sprintf("%s must be HH:MM", field)
		case "datetime":
			msg = fmt.Sprintf("%s must match %s", field, err.Param())
		default:
			msg = fmt.Sprintf("%s is invalid", field)
		}
		out = append(out, FieldError{Field: err.Namespace(), Message: msg})
	}
	return out
}
