package validator

import (
	"fmt"

	validator "github.com/asaskevich/govalidator"

	"serverless/internal/config"
)

// Validator is an interface for validating configurations
type Validator interface {
	Validate(c *config.Config) error
}

func init() {
	// validation to fail when struct fields do not include validations or are
	// not explicitly marked as exempt (using valid:"-" or
	// valid:"email,optional")
	validator.SetFieldsRequiredByDefault(false)
	for k, v := range config.Validators {
		validator.TagMap[k] = validator.Validator(v)
	}
}

// Validate Config the service configuration
func Validate(c *config.Config) error {
	if _, err := validator.ValidateStruct(c); err != nil {
		return fmt.Errorf("Configuration is not correct: %s", err)
	}
	// maps are not walked by govalidator
	for _, name := range c.FunctionNames() {
		f := c.Functions[name]
		if f == nil {
			return fmt.Errorf("Configuration is not correct: function '%s' is empty", name)
		}
		if _, err := validator.ValidateStruct(f); err != nil {
			return fmt.Errorf("Configuration is not correct: function '%s': %s", name, err)
		}
	}
	return nil
}
