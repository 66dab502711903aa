package mfa

import (
	"errors"
	"regexp"
	"strings"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ErrInvalidPhoneNumber is returned when a phone number is not E.164.
var ErrInvalidPhoneNumber = errors.New("phone number must be E.164 (e.g. +14155552671)")

// ValidatePhoneNumber checks that phone is E.164 formatted.
func ValidatePhoneNumber(phone string) error {
	if !e164Pattern.MatchString(strings.TrimSpace(phone)) {
		return ErrInvalidPhoneNumber
	}
	return nil
}

// MaskPhoneNumber returns a display form of an E.164 number with the middle
// digits masked, e.g. "+14155552671" -> "+1-415-***-2671". Numbers too short
// to mask are returned as "***".
func MaskPhoneNumber(phone string) string {
	digits := strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if len(digits) < 8 {
		return "***"
	}
	last4 := digits[len(digits)-4:]
	if len(digits) == 11 && digits[0] == '1' {
		// NANP: +1-AAA-***-NNNN
		return "+1-" + digits[1:4] + "-***-" + last4
	}
	return "+" + digits[:len(digits)-8] + "-***-" + last4
}
