package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/pkg/apperr"
)

// ValidationError maps json field names to messages.
type ValidationError struct {
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f, e.Errors[f]))
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// Validator adapts go-playground/validator to echo.Validator, reporting
// fields by their json names.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Errors: out}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uuid", "uuid4":
		return "must be a valid id"
	case "datetime":
		return fmt.Sprintf("must match the format %s", fe.Param())
	case "alphanum":
		return "must contain only letters and digits"
	default:
		return fmt.Sprintf("failed the %q rule", fe.Tag())
	}
}

// Bind decodes the request into dst and validates it. A body cut off by the
// size limit is TooLarge; any other failure is a BadRequest.
func Bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return apperr.Wrap(err, apperr.KindTooLarge, "request body too large")
		}
		return apperr.Wrap(err, apperr.KindBadRequest, "malformed request body")
	}
	if err := c.Validate(dst); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return apperr.Wrap(err, apperr.KindBadRequest, verr.Error())
		}
		return apperr.Wrap(err, apperr.KindBadRequest, "invalid request")
	}
	return nil
}
