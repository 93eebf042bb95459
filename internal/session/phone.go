package session

import (
	"errors"
	"strings"
)

var ErrBadPhone = errors.New("phone number must look like +123456789")

// NormalizePhone validates an operator-supplied phone number and strips
// spacing. Phones name credential files, so only a conservative charset is
// accepted.
func NormalizePhone(raw string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if len(s) < 7 || len(s) > 17 || s[0] != '+' {
		return "", ErrBadPhone
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return "", ErrBadPhone
		}
	}
	return s, nil
}
