package utils

import (
	"github.com/ztrue/tracerr"
	"golang.org/x/exp/constraints"
	"golang.org/x/text/unicode/norm"
	"regexp"
	"strings"
	"time"
)

const Version = "0.9.2"

var (
	// ErrorInvalidEmail is returned when an email address does not have a valid format
	ErrorInvalidEmail = NewVerifError("INVALID_EMAIL", "invalid email address")
	// ErrorInvalidPhoneNumber is returned when a phone number is not a valid French national number
	ErrorInvalidPhoneNumber = NewVerifError("INVALID_PHONE_NUMBER", "invalid French phone number")
	// ErrorInvalidBirthDate is returned when a birth date cannot be parsed
	ErrorInvalidBirthDate = NewVerifError("INVALID_BIRTH_DATE", "birth date must be formatted as YYYY-MM-DD")
	// ErrorUnderageSubject is returned when the subject is under 18 at submission time
	ErrorUnderageSubject = NewVerifError("UNDERAGE_SUBJECT", "subject must be at least 18 years old")
	// ErrorInvalidOTPFormat is returned when an OTP input is not exactly 6 digits
	ErrorInvalidOTPFormat = NewVerifError("INVALID_OTP_FORMAT", "verification code must be exactly 6 digits")
)

var (
	emailRegexp = regexp.MustCompile("^[a-zA-Z0-9_.+-]+@([a-zA-Z0-9-]+\\.)+[a-zA-Z0-9-]{2,}$")
	// French national format: 10 digits, leading 0, no separators
	frenchPhoneRegexp = regexp.MustCompile("^0[1-9][0-9]{8}$")
	otpRegexp         = regexp.MustCompile("^[0-9]{6}$")
)

const BirthDateLayout = "2006-01-02"

func IsEmail(email string) bool {
	lowerCaseEmail := strings.ToLower(email)
	return emailRegexp.MatchString(lowerCaseEmail)
}

func CheckEmail(email string) error {
	if IsEmail(email) {
		return nil
	}
	return tracerr.Wrap(ErrorInvalidEmail.AddDetails(email))
}

func IsFrenchPhoneNumber(phone string) bool {
	return frenchPhoneRegexp.MatchString(phone)
}

func CheckFrenchPhoneNumber(phone string) error {
	if IsFrenchPhoneNumber(phone) {
		return nil
	}
	return tracerr.Wrap(ErrorInvalidPhoneNumber.AddDetails(phone))
}

func IsOTPFormat(code string) bool {
	return otpRegexp.MatchString(code)
}

// CheckAdult verifies that a subject born on birthDate (YYYY-MM-DD) is at
// least 18 years old at the given reference time. The 18th birthday itself
// passes.
func CheckAdult(birthDate string, now time.Time) error {
	parsed, err := time.Parse(BirthDateLayout, birthDate)
	if err != nil {
		return tracerr.Wrap(ErrorInvalidBirthDate.AddDetails(birthDate))
	}
	eighteenth := parsed.AddDate(18, 0, 0)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if today.Before(eighteenth) {
		return tracerr.Wrap(ErrorUnderageSubject.AddDetails(birthDate))
	}
	return nil
}

// MaskEmail keeps the first character of the local part and the full domain:
// "jean@test.fr" -> "j***@test.fr".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 1 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhoneNumber keeps the leading 2 and trailing 2 digits:
// "0612345678" -> "06******78".
func MaskPhoneNumber(phone string) string {
	if len(phone) < 5 {
		return phone
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// NormalizeString applies NFKC normalization, so that identity fields compare
// consistently with what the analysis backend extracts from documents.
func NormalizeString(s string) string {
	return string(norm.NFKC.Bytes([]byte(s)))
}

// Set implements three methods: Add, Remove & Has.
// It needs to be defined with a comparable generic type such as int or string.
// The len operator can be used on Set.
type Set[T comparable] map[T]struct{}

// Add adds the given element to the Set.
func (s Set[T]) Add(element T) {
	s[element] = struct{}{}
}

// Remove removes given element from Set. If element is not in Set, Remove is a no-op.
func (s Set[T]) Remove(element T) {
	delete(s, element)
}

// Has checks if element is in Set, and returns true or false.
func (s Set[T]) Has(element T) bool {
	_, ok := s[element]
	return ok
}

func SliceIncludes[T comparable](s []T, u T) bool {
	for _, e := range s {
		if e == u {
			return true
		}
	}
	return false
}

func SliceMap[T interface{}, U interface{}](s []T, f func(T) U) []U {
	output := make([]U, len(s))
	for i, e := range s {
		output[i] = f(e)
	}
	return output
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Ternary is a helper function to inline ternary operations
func Ternary[T any](condition bool, valTrue T, valFalse T) T {
	if condition {
		return valTrue
	}
	return valFalse
}
