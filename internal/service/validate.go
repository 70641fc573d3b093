package service

import (
	"errors"
	"regexp"
	"strconv"
	"sync"
	"unicode/utf16"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/auth-demo/internal/apperror"
)

// emailPattern is deliberately loose: something, an @, something, a dot,
// something. The domain check and the provider do the real vetting.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Messages shown for failed credential checks.
const (
	MsgLoginRequired    = "Email and password are required"
	MsgSignupRequired   = "All fields are required"
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordTooShort = "Password must be at least 6 characters long"
	MsgInvalidEmail     = "Please enter a valid email address"
)

// signupRules lists the signup tags in the order they are reported. When
// several fields fail, the first tag in this list wins, so the user always
// sees the same message for the same input no matter how the validator
// orders its errors.
var signupRules = []struct {
	tag     string
	message string
}{
	{"required", MsgSignupRequired},
	{"eqfield", MsgPasswordMismatch},
	{"utf16min", MsgPasswordTooShort},
	{"demoemail", MsgInvalidEmail},
}

// credentialValidator is shared by every AuthService; validator caches struct
// metadata per instance.
var credentialValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("demoemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err) // only fails for an empty tag name
	}
	if err := v.RegisterValidation("utf16min", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			panic("utf16min: bad limit " + strconv.Quote(fl.Param()))
		}
		return utf16Len(fl.Field().String()) >= limit
	}); err != nil {
		panic(err)
	}
	return v
})

// utf16Len counts s in UTF-16 code units: one per rune, two for a rune
// outside the Basic Multilingual Plane. "😀😀😀" is six units long.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// signupError maps a validator error on SignupCredentials to the highest
// ranked message.
func signupError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	best := len(signupRules)
	field := ""
	for _, fe := range fieldErrs {
		for rank, rule := range signupRules {
			if fe.Tag() == rule.tag && rank < best {
				best = rank
				field = fe.Field()
			}
		}
	}
	if best == len(signupRules) {
		return apperror.ValidationFailed(fieldErrs[0].Field(), fieldErrs[0].Error())
	}
	return apperror.ValidationFailed(field, signupRules[best].message)
}
