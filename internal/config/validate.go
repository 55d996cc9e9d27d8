package config

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

// PackIDPattern is the set of safe pack directory names.
var PackIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("packid", func(fl validator.FieldLevel) bool {
			return PackIDPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Validate checks struct tags, including the custom "packid" rule.
func Validate(v any) error {
	return validatorInstance().Struct(v)
}

// ValidPackID reports whether id is a safe pack directory name.
func ValidPackID(id string) bool {
	return validatorInstance().Var(id, "packid") == nil
}
