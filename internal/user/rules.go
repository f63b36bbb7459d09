package user

import (
	"errors"
	"regexp"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ECMAScript \s, spelled out because RE2's \s only covers ASCII whitespace.
const whitespace = `\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

const passwordSymbols = `@$!%*?&`

// Email parts also exclude control characters, which Postgres TEXT cannot always hold.
const emailExcluded = `@` + whitespace + `\x00-\x1f\x7f`

var (
	fullNamePattern = regexp.MustCompile(`^[A-Za-z` + whitespace + `]+$`)
	emailPattern    = regexp.MustCompile(`^[^` + emailExcluded + `]+@[^` + emailExcluded + `]+\.[^` + emailExcluded + `]+$`)

	// RE2 has no lookahead, so the password policy is an alphabet check plus one
	// "contains" check per required character class.
	passwordAlphabet = regexp.MustCompile(`^[A-Za-z0-9` + passwordSymbols + `]{8,}$`)
	passwordClasses  = []*regexp.Regexp{
		regexp.MustCompile(`[a-z]`),
		regexp.MustCompile(`[A-Z]`),
		regexp.MustCompile(`[0-9]`),
		regexp.MustCompile(`[` + passwordSymbols + `]`),
	}
)

const (
	msgMissingFields     = "Validation failed: Missing fields."
	msgEmailRequired     = "Validation failed: Email is required."
	msgInvalidEmail      = "Validation failed: Invalid email format."
	msgInvalidFullName   = "Validation failed: Full name must only contain alphabetic characters."
	msgInvalidEditedName = "Validation failed: Full name must only contain alphabetic characters and spaces."
	msgWeakPassword      = "Validation failed: Password must be at least 8 characters long, with one uppercase letter, one lowercase letter, one digit, and one special character."
	msgImageRequired     = "Validation failed: Image file is required."
)

func IsValidFullName(s string) bool {
	return fullNamePattern.MatchString(s)
}

// IsValidEmail also rejects invalid UTF-8, which the pattern alone would read as U+FFFD.
func IsValidEmail(s string) bool {
	return utf8.ValidString(s) && emailPattern.MatchString(s)
}

// IsStrongPassword checks length >= 8, one lowercase, one uppercase, one digit
// and one of @$!%*?&, with nothing outside that combined alphabet.
func IsStrongPassword(s string) bool {
	if !passwordAlphabet.MatchString(s) {
		return false
	}
	for _, re := range passwordClasses {
		if !re.MatchString(s) {
			return false
		}
	}
	return true
}

// NewValidator returns a validator with the fullname, emailaddr and password tags registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "fullname", IsValidFullName)
	mustRegister(v, "emailaddr", IsValidEmail)
	mustRegister(v, "password", IsStrongPassword)
	return v
}

func mustRegister(v *validator.Validate, tag string, rule func(string) bool) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return rule(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

// validateNewUser reports the first problem in the order
// missing fields, email, full name, password.
func validateNewUser(v *validator.Validate, in NewUser) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failed := make(map[string]bool, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return newValidationError(msgMissingFields)
		}
		failed[fe.Field()] = true
	}

	switch {
	case failed["Email"]:
		return newValidationError(msgInvalidEmail)
	case failed["FullName"]:
		return newValidationError(msgInvalidFullName)
	default:
		return newValidationError(msgWeakPassword)
	}
}

// validateChanges checks only the supplied fields.
func validateChanges(v *validator.Validate, c Changes) error {
	if c.FullName != nil {
		if err := v.Var(*c.FullName, "fullname"); err != nil {
			return newValidationError(msgInvalidEditedName)
		}
	}
	if c.Password != nil {
		if err := v.Var(*c.Password, "password"); err != nil {
			return newValidationError(msgWeakPassword)
		}
	}
	return nil
}
