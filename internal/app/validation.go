package app

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"matchpoint/internal/domain"
)

// GenderOptions are the accepted profile genders.
var GenderOptions = []string{"Male", "Female", "Non-binary", "Prefer not to say"}

// InterestOptions are the accepted profile interests.
var InterestOptions = []string{
	"Travel", "Music", "Movies", "Reading", "Cooking", "Sports",
	"Art", "Technology", "Fitness", "Photography", "Gaming", "Dancing",
	"Hiking", "Yoga", "Fashion", "Pets", "Food", "Writing",
}

const maxPasswordBytes = 72

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return contains(GenderOptions, fl.Field().String())
	})
	_ = v.RegisterValidation("interest", func(fl validator.FieldLevel) bool {
		return contains(InterestOptions, fl.Field().String())
	})
	// bcrypt only hashes the first 72 bytes and rejects anything longer.
	_ = v.RegisterValidation("bcrypt", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ValidateStruct runs the struct tags on s and converts failures into a
// domain.ValidationError named by json field. messages maps "field" or
// "field.tag" to user text; unmapped failures get a generic message per tag.
func ValidateStruct(s any, messages map[string]string) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := domain.NewValidationError()
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		msg, ok := messages[field+"."+fe.Tag()]
		if !ok {
			msg, ok = messages[stripIndex(field)]
		}
		if !ok {
			msg = defaultMessage(fe)
		}
		verr.Add(field, msg)
	}
	return verr.OrNil()
}

func defaultMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please enter a valid email address"
	case "min", "max":
		return fe.Field() + " is out of range"
	default:
		return "invalid value"
	}
}

// stripIndex turns "interests[2]" into "interests".
func stripIndex(field string) string {
	if i := strings.IndexByte(field, '['); i >= 0 {
		return field[:i]
	}
	return field
}
