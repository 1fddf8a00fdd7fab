package job

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is the sentinel wrapped by every ValidationError.
var ErrValidation = errors.New("invalid job spec")

// ValidationError reports a malformed spec. It is returned synchronously by
// Submit and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("param"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("service", func(fl validator.FieldLevel) bool {
		return slices.Contains(Services, fl.Field().String())
	})
	return v
}

// Validate checks spec and returns it with defaults applied together with its
// decoded parameters.
func Validate(spec Spec) (Spec, Params, error) {
	spec.Target = strings.TrimSpace(spec.Target)
	if err := ValidateTarget(spec.Target); err != nil {
		return Spec{}, nil, err
	}
	if !spec.Type.Valid() {
		return Spec{}, nil, &ValidationError{Field: "type", Reason: "must be one of: " + joinTypes()}
	}
	if spec.MaxAttempts < 0 {
		return Spec{}, nil, &ValidationError{Field: "max_attempts", Reason: "must be at least 1"}
	}
	if spec.Timeout < 0 {
		return Spec{}, nil, &ValidationError{Field: "timeout", Reason: "must not be negative"}
	}

	params, err := DecodeParams(spec.Type, spec.Parameters)
	if err != nil {
		return Spec{}, nil, err
	}
	if err := validate.Struct(params); err != nil {
		return Spec{}, nil, fromValidator(err)
	}
	return spec.withDefaults(), params, nil
}

// ValidateTarget accepts IP literals and RFC 1123 host names.
func ValidateTarget(target string) error {
	if target == "" {
		return &ValidationError{Field: "target", Reason: "required"}
	}
	invalid := &ValidationError{Field: "target", Reason: "must be an IP address or domain name"}
	if err := validate.Var(target, "ip|hostname_rfc1123"); err != nil {
		return invalid
	}
	// hostname_rfc1123 accepts dotted digit strings such as 256.1.1.1, so a
	// numeric last label must be a real IP literal.
	if numericTLD(target) {
		if err := validate.Var(target, "ip"); err != nil {
			return invalid
		}
	}
	return nil
}

func numericTLD(host string) bool {
	host = strings.TrimSuffix(host, ".")
	last := host[strings.LastIndexByte(host, '.')+1:]
	if last == "" {
		return false
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "parameters", Reason: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: "parameters." + fe.Field(), Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "service":
		return "must be one of: " + strings.Join(Services, ", ")
	case "min", "max":
		return fmt.Sprintf("out of range (%s=%s)", fe.Tag(), fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "contains":
		return fmt.Sprintf("must contain %q", fe.Param())
	default:
		return "failed " + fe.Tag() + " check"
	}
}
