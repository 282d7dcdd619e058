package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance used across the module.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	if err := validate.RegisterValidation("probability", validateProbability); err != nil {
		panic(fmt.Sprintf("failed to register probability validator: %v", err))
	}
}

// validateProbability accepts floats in [0, 1].
func validateProbability(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return v >= 0 && v <= 1
}

// Validate checks s against its `validate` struct tags.
//
// Example:
//
//	type Options struct {
//	    MaxDemos int     `validate:"gte=0"`
//	    Quality  float64 `validate:"probability"`
//	}
//
//	if err := Validate(&opts); err != nil {
//	    return err
//	}
func Validate(s any) error {
	return validate.Struct(s)
}

// RegisterCustomValidation registers a custom validation tag with the shared validator.
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
