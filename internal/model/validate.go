package model

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var nginxSizeRe = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)

// NewValidator returns a validator with the proxy-specific tags registered:
// "nginxsize" accepts sizes such as 4k, 10m or 512.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nginxsize", func(fl validator.FieldLevel) bool {
		return nginxSizeRe.MatchString(fl.Field().String())
	})
	return v
}
