package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/nixlim/fieldwatch/internal/alerts"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the shared validator with the alert taxonomy tags
// registered: alert_status, severity, alert_type, resolution and
// escalation_reason.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their JSON or query name.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "query"} {
				name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})

		mustRegister(v, "alert_status", func(fl validator.FieldLevel) bool {
			return alerts.Status(fl.Field().String()).Valid()
		})
		mustRegister(v, "severity", func(fl validator.FieldLevel) bool {
			return alerts.Severity(fl.Field().String()).Valid()
		})
		mustRegister(v, "alert_type", func(fl validator.FieldLevel) bool {
			return alerts.Type(fl.Field().String()).Valid()
		})
		mustRegister(v, "resolution", func(fl validator.FieldLevel) bool {
			return alerts.Resolution(fl.Field().String()).Valid()
		})
		mustRegister(v, "escalation_reason", func(fl validator.FieldLevel) bool {
			return alerts.EscalationReason(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("registering %s validator: %v", tag, err))
	}
}

// validationError is returned by validateStruct. Message lists every failed
// field.
type validationError struct {
	Fields  []string
	Message string
}

func (e *validationError) Error() string { return e.Message }

// validateStruct validates s and translates failures into a single
// readable message.
func validateStruct(s any) *validationError {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &validationError{Message: err.Error()}
	}

	out := &validationError{}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fe.Field())
		msgs = append(msgs, fieldMessage(fe))
	}
	out.Message = strings.Join(msgs, "; ")
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "alert_status":
		return fmt.Sprintf("%s must be one of active, investigating, resolved", field)
	case "severity":
		return fmt.Sprintf("%s must be one of low, medium, high", field)
	case "alert_type":
		return fmt.Sprintf("%s must be one of %s", field, joinValues(alerts.Types))
	case "resolution":
		return fmt.Sprintf("%s must be one of %s", field, joinValues(alerts.Resolutions))
	case "escalation_reason":
		return fmt.Sprintf("%s must be one of %s", field, joinValues(alerts.EscalationReasons))
	}
	return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
