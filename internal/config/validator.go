package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alexisbeaulieu97/dcvprov/internal/gate"
	"github.com/alexisbeaulieu97/dcvprov/internal/resource"
	dcverrors "github.com/alexisbeaulieu97/dcvprov/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})

		_ = v.RegisterValidation("step_kind", func(fl validator.FieldLevel) bool {
			for _, k := range resource.Kinds() {
				if string(k) == fl.Field().String() {
					return true
				}
			}
			return false
		})

		_ = v.RegisterValidation("kind_state", func(fl validator.FieldLevel) bool {
			kind := fl.Parent().FieldByName("Kind")
			if !kind.IsValid() || kind.Kind() != reflect.String {
				return false
			}
			return resource.Recognized(resource.Kind(kind.String()), resource.State(fl.Field().String()))
		})

		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d >= 0
		})

		_ = v.RegisterValidation("octal_mode", func(fl validator.FieldLevel) bool {
			field := fl.Field()
			if field.Kind() != reflect.Map {
				return false
			}
			mode := field.MapIndex(reflect.ValueOf(resource.ParamMode))
			if !mode.IsValid() || strings.Contains(mode.String(), "{{") {
				return true
			}
			_, err := resource.ParseMode(mode.String())
			return err == nil
		})

		_ = v.RegisterValidation("expr", func(fl validator.FieldLevel) bool {
			_, err := gate.Compile(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})

	return validateInst
}

// ValidateRecipe performs schema and cross-step validation of a recipe.
func ValidateRecipe(r *Recipe) error {
	if r == nil {
		return dcverrors.NewValidationError("recipe", "recipe is nil", nil)
	}

	if err := validatorInstance().Struct(r); err != nil {
		return convertValidationError(err)
	}

	seen := make(map[string]int, len(r.Steps))
	for i, step := range r.Steps {
		if prev, exists := seen[step.Name]; exists {
			return dcverrors.NewValidationError(fieldForStep(i, "name"),
				fmt.Sprintf("duplicate step name %q (first used by steps[%d])", step.Name, prev), nil)
		}
		seen[step.Name] = i
	}
	return nil
}

// ValidateSettings checks tool settings.
func ValidateSettings(s *Settings) error {
	if err := validatorInstance().Struct(s); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		return dcverrors.NewValidationError(field, describe(ve), err)
	}

	return dcverrors.NewValidationError("recipe", err.Error(), err)
}

func describe(fe validator.FieldError) string {
	value := fmt.Sprint(fe.Value())
	switch fe.Tag() {
	case "required":
		return "is required"
	case "step_kind":
		return fmt.Sprintf("unknown kind %q (expected one of %v)", value, resource.Kinds())
	case "kind_state":
		return fmt.Sprintf("state %q is not recognized for this kind", value)
	case "duration":
		return fmt.Sprintf("%q is not a non-negative duration such as 5s", value)
	case "octal_mode":
		return "mode must be an octal value up to 7777"
	case "expr":
		_, compileErr := gate.Compile(value)
		return fmt.Sprintf("invalid expression: %v", compileErr)
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}

// yamlishFieldName turns "Recipe.steps[2].state" into "steps[2].state".
func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
