package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

// codePattern matches platform and inspection-type codes ("EZ", "IA", "interior_occupancy").
var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,39}$`)

// statePattern matches two-letter US state codes.
var statePattern = regexp.MustCompile(`^[A-Z]{2}$`)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		}
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("filter_code", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(fl.Field().String())
	})

	validate.RegisterValidation("us_state", func(fl validator.FieldLevel) bool {
		state := fl.Field().String()
		return state == "" || statePattern.MatchString(state)
	})

	validate.RegisterValidation("grant_type", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "purchase", "referral_bonus", "admin_grant", "refund":
			return true
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range validationErrors {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "filter_code":
			errors[field] = "Invalid filter code"
		case "us_state":
			errors[field] = "Invalid state. Must be a two-letter code"
		case "grant_type":
			errors[field] = "Invalid grant type. Must be: purchase, referral_bonus, admin_grant, or refund"
		case "uuid":
			errors[field] = "Invalid ID format"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
