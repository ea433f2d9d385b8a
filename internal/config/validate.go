package config

import "regexp"

type ValidatorFn func(string) bool

type Validate map[string]ValidatorFn

var stageRegexp = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Providers known by the program
var Providers = []string{"aws", "docker", "kubernetes"}

// Custom validators, registered in govalidator by the validator package
var Validators = Validate{
	"provider": func(s string) bool {
		for _, p := range Providers {
			if p == s {
				return true
			}
		}
		return false
	},
	"stage": func(s string) bool {
		return stageRegexp.MatchString(s)
	},
}
