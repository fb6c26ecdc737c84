package finance

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Validator checks command payloads before they reach the lifecycle guards
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a validator with the ledger tags registered
func NewValidator() *Validator {
	v := validator.New()
	RegisterLedgerRules(v)
	return &Validator{v: v}
}

// RegisterLedgerRules installs the decimal and currency rules on v. The HTTP
// binding engine is configured with the same rules.
func RegisterLedgerRules(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("dgte0", func(fl validator.FieldLevel) bool {
		d, ok := decimalValue(fl)
		return ok && !d.IsNegative()
	})
	_ = v.RegisterValidation("dgt0", func(fl validator.FieldLevel) bool {
		d, ok := decimalValue(fl)
		return ok && d.IsPositive()
	})
	_ = v.RegisterValidation("iso4217", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) != 3 {
			return false
		}
		_, err := currency.ParseISO(code)
		return err == nil
	})
}

func decimalValue(fl validator.FieldLevel) (decimal.Decimal, bool) {
	s := fl.Field().String()
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

// Struct validates payload and turns field failures into a VALIDATION_ERROR
func (v *Validator) Struct(payload any) error {
	err := v.v.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.NewValidationError("Invalid input provided")
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return shared.NewValidationError("%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "dgte0":
		return field + " cannot be negative"
	case "dgt0":
		return field + " must be greater than zero"
	case "iso4217":
		return field + " must be an ISO 4217 currency code"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " needs at least " + fe.Param() + " entries"
		}
		return field + " must be at least " + fe.Param()
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "lte":
		return field + " must be at most " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// fieldPath drops the payload type and embedded struct names from a
// namespace such as "ApInvoiceInput.DocumentFields.currency"
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	kept := make([]string, 0, len(parts))
	for i, p := range parts {
		if i == 0 || (p != "" && p[0] >= 'A' && p[0] <= 'Z') {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return parts[len(parts)-1]
	}
	return strings.Join(kept, ".")
}
