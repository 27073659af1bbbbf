package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/budget-service/internal/models"
)

// Validation errors.
var (
	ErrValidationFailed       = errors.New("validation failed")
	ErrBodyParseFailed        = errors.New("failed to parse request body")
	ErrUnsupportedContentType = errors.New("Content-Type must be application/json")
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())
	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// decimal.Decimal is a struct, so the rule inspects the field directly.
	if err := vld.RegisterValidation("positive_decimal", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && value.IsPositive()
	}); err != nil {
		return nil, fmt.Errorf("failed to register 'positive_decimal': %w", err)
	}
	if err := vld.RegisterValidation("amount_limits", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && models.ValidateAmount(value) == nil
	}); err != nil {
		return nil, fmt.Errorf("failed to register 'amount_limits': %w", err)
	}
	return vld, nil
}

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	return validate, errValidate
}

var amountLimits = fmt.Sprintf("must be at most %s with at most %d decimal places", models.MaxAmount, models.MaxAmountScale)

var fieldErrorFormatters = map[string]func(field, param string) string{
	"required":         func(field, _ string) string { return fmt.Sprintf("'%s' is required", field) },
	"max":              func(field, param string) string { return fmt.Sprintf("'%s' must be at most %s characters", field, param) },
	"gt":               func(field, param string) string { return fmt.Sprintf("'%s' must be greater than %s", field, param) },
	"oneof":            func(field, param string) string { return fmt.Sprintf("'%s' must be one of [%s]", field, param) },
	"positive_decimal": func(field, _ string) string { return fmt.Sprintf("'%s' must be a positive number", field) },
	"amount_limits":    func(field, _ string) string { return fmt.Sprintf("'%s' %s", field, amountLimits) },
}

// validateStruct returns the first failed rule as an ErrValidationFailed.
func validateStruct(payload any) error {
	vld, err := getValidator()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := vld.Struct(payload); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			if format, ok := fieldErrorFormatters[fe.Tag()]; ok {
				return fmt.Errorf("%w: %s", ErrValidationFailed, format(fe.Field(), fe.Param()))
			}
			return fmt.Errorf("%w: '%s' failed '%s' check", ErrValidationFailed, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

// decodeAndValidate parses a JSON body into payload and validates it.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, payload any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return ErrUnsupportedContentType
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrBodyParseFailed, err)
	}
	return validateStruct(payload)
}
