package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	apperrors "settlr/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	accountNumberRegex = regexp.MustCompile(`^[0-9]{10}$`)
	bankCodeRegex      = regexp.MustCompile(`^[0-9A-Za-z]{3,16}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("account_number", func(fl validator.FieldLevel) bool {
		return accountNumberRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("bank_code", func(fl validator.FieldLevel) bool {
		return bankCodeRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.IsPositive() && d.Equal(d.Round(2))
	})
	return v
}

// Struct validates a request DTO and returns a VALIDATION_ERROR describing the
// first failing field.
func Struct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.ErrValidation.WithCause(err)
	}
	return apperrors.ErrValidation.WithMessage(message(verrs[0]))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "money":
		return fmt.Sprintf("%s must be a positive amount with at most two decimal places", fe.Field())
	case "account_number":
		return fmt.Sprintf("%s must be a 10 digit account number", fe.Field())
	case "bank_code":
		return fmt.Sprintf("%s is not a valid bank code", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// Amount parses a validated money string.
func Amount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, apperrors.Validation("amount must be a positive number")
	}
	return d, nil
}
