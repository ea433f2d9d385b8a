package engine

import "fmt"

// Options holds the raw command line flags keyed by long name or shortcut.
// Values are strings, or the boolean true when a flag was given without a
// value.
type Options map[string]interface{}

// String returns the value of an option, empty when it is not set or it is a
// flag without value
func (o Options) String(name string) string {
	switch v := o[name].(type) {
	case string:
		return v
	case nil, bool:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool tells if a flag was given
func (o Options) Bool(name string) bool {
	switch v := o[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// isValueless tells if the option is absent or given as a bare flag
func (o Options) isValueless(name string) bool {
	v, ok := o[name]
	if !ok || v == nil {
		return true
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == ""
	}
	return false
}

// ConvertShortcuts copies the value of every shortcut present in the raw
// options into the canonical option name of the invoked command. The
// shortcut always wins over a long option given at the same time.
func ConvertShortcuts(command *Command, raw Options) Options {
	for _, name := range command.OptionNames() {
		option := command.Options[name]
		if option == nil || option.Shortcut == "" {
			continue
		}
		if value, ok := raw[option.Shortcut]; ok {
			raw[name] = value
		}
	}
	return raw
}

// AssignDefaults sets the default value of the options which are absent or
// given without value
func AssignDefaults(command *Command, raw Options) Options {
	for _, name := range command.OptionNames() {
		option := command.Options[name]
		if option == nil || option.Default == "" {
			continue
		}
		if raw.isValueless(name) {
			raw[name] = option.Default
		}
	}
	return raw
}

// ValidateOptions checks required options and custom validations of the
// resolved command. Options are checked in name order.
func ValidateOptions(command *Command, raw Options) error {
	for _, name := range command.OptionNames() {
		option := command.Options[name]
		if option == nil {
			continue
		}
		if option.Required && option.Type != OptionTypeBoolean && raw.isValueless(name) {
			return &MissingRequiredOptionError{
				Option:   name,
				Shortcut: option.Shortcut,
				Usage:    option.Usage,
			}
		}
		if option.Required && option.Type == OptionTypeBoolean && !raw.Has(name) {
			return &MissingRequiredOptionError{
				Option:   name,
				Shortcut: option.Shortcut,
				Usage:    option.Usage,
			}
		}
		cv := option.CustomValidation
		if cv == nil || cv.RegularExpression == nil {
			continue
		}
		// only supplied values are matched
		if value, ok := raw[name].(string); ok && !cv.RegularExpression.MatchString(value) {
			return &CustomValidationError{
				Option:  name,
				Message: cv.ErrorMessage,
			}
		}
	}
	return nil
}
