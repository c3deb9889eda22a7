package normalize

import (
	"errors"
	"fmt"
	"strings"
)

// Phone normalizes a subscriber number to a single +<countrycode><digits>
// representation so that "09123456789" and "+639123456789" compare equal.
// countryCode is the default dialing code applied to local-format numbers,
// with or without a leading "+".
func Phone(raw string, countryCode string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "", errors.New("empty phone number")
	}

	if strings.HasPrefix(cleaned, "+") {
		digits := cleaned[1:]
		if !allDigits(digits) {
			return "", fmt.Errorf("invalid phone number: %q", raw)
		}
		if len(digits) < 7 {
			return "", fmt.Errorf("phone number too short: %q", raw)
		}
		return "+" + digits, nil
	}

	if !allDigits(cleaned) {
		return "", fmt.Errorf("invalid phone number: %q", raw)
	}
	digits := strings.TrimLeft(cleaned, "0")
	if len(digits) < 7 {
		return "", fmt.Errorf("phone number too short: %q", raw)
	}
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" || !allDigits(cc) {
		return "", fmt.Errorf("invalid country code: %q", countryCode)
	}
	return "+" + cc + digits, nil
}

func allDigits(s string) bool {
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(s) > 0
}
