// Package validation checks user input locally before anything is sent to
// the backend. Rules are declared with `rule:"..."` struct tags and run by
// go-playground/validator.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// DefaultDomains are the email providers accepted when no list is configured.
var DefaultDomains = []string{
	"gmail.com",
	"outlook.com",
	"hotmail.com",
	"live.com",
	"yahoo.com",
	"icloud.com",
	"protonmail.com",
}

// Error maps a field name to a human readable problem.
type Error struct {
	Fields map[string]string
	order  []string
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.order))
	for _, f := range e.order {
		msgs = append(msgs, e.Fields[f])
	}
	return strings.Join(msgs, "; ")
}

// First returns the message of the first failing field.
func (e *Error) First() string {
	if len(e.order) == 0 {
		return ""
	}
	return e.Fields[e.order[0]]
}

func (e *Error) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = msg
	e.order = append(e.order, field)
}

type Validator struct {
	v       *validator.Validate
	domains map[string]struct{}
	listed  string
}

// New builds a validator accepting emails from domains. An empty list means
// DefaultDomains.
func New(domains []string) *Validator {
	if len(domains) == 0 {
		domains = DefaultDomains
	}

	val := &Validator{
		v:       validator.New(validator.WithRequiredStructEnabled()),
		domains: make(map[string]struct{}, len(domains)),
	}
	val.v.SetTagName("rule")
	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	names := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		val.domains[d] = struct{}{}
		names = append(names, d)
	}
	sort.Strings(names)
	val.listed = strings.Join(names, ", ")

	must(val.v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return IsUsername(fl.Field().String())
	}))
	must(val.v.RegisterValidation("allowed_domain", func(fl validator.FieldLevel) bool {
		return val.AllowedEmail(fl.Field().String())
	}))
	must(val.v.RegisterValidation("strong_password", func(fl validator.FieldLevel) bool {
		return IsStrongPassword(fl.Field().String())
	}))
	must(val.v.RegisterValidation("recovery_code", func(fl validator.FieldLevel) bool {
		return IsCode(fl.Field().String())
	}))

	return val
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Struct validates s and returns *Error, or nil when s is valid.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{}
	for _, fe := range verrs {
		out.add(fe.Field(), val.message(fe))
	}
	return out
}

// Domains returns the accepted email domains, sorted.
func (val *Validator) Domains() string {
	return val.listed
}

// AllowedEmail reports whether s is local@domain with a non-empty local part
// and a domain from the allow-list. Domains compare case-insensitively.
func (val *Validator) AllowedEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	_, ok := val.domains[strings.ToLower(s[at+1:])]
	return ok
}

func (val *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "username":
		return "Username may contain only lowercase letters (a-z)"
	case "allowed_domain":
		return "Use an email from a supported provider: " + val.listed
	case "strong_password":
		return "Password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and a symbol"
	case "eqfield":
		return "Passwords do not match"
	case "recovery_code":
		return "The code must be exactly 6 letters or digits"
	case "eq":
		if fe.Kind() == reflect.Bool {
			return "You must accept the terms and conditions"
		}
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// IsUsername reports whether s is non-empty and made of a-z only.
func IsUsername(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// IsStrongPassword requires at least 8 characters with an ASCII uppercase
// letter, an ASCII lowercase letter, a digit and a character outside
// [A-Za-z0-9].
func IsStrongPassword(s string) bool {
	if len([]rune(s)) < 8 {
		return false
	}
	var upper, lower, digit, other bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	return upper && lower && digit && other
}

// IsCode reports whether s is exactly six characters long. The backend
// decides whether those characters form a valid code.
func IsCode(s string) bool {
	return utf8.RuneCountInString(s) == 6
}
