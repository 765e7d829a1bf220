// internal/phone/phone.go
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// Process-wide immutable lookup tables, initialized once.
var (
	// callingCodes is the allow-list of international calling codes used for
	// longest-prefix matching (3-digit, then 2-digit, then 1-digit).
	callingCodes = map[string]bool{
		"1": true, "7": true,
		"20": true, "27": true, "30": true, "31": true, "32": true, "33": true,
		"34": true, "36": true, "39": true, "40": true, "41": true, "43": true,
		"44": true, "45": true, "46": true, "47": true, "48": true, "49": true,
		"51": true, "52": true, "53": true, "54": true, "55": true, "56": true,
		"57": true, "58": true, "60": true, "61": true, "62": true, "63": true,
		"64": true, "65": true, "66": true, "81": true, "82": true, "84": true,
		"86": true, "90": true, "91": true, "92": true, "93": true, "94": true,
		"95": true, "98": true,
		"211": true, "212": true, "213": true, "216": true, "218": true,
		"220": true, "221": true, "233": true, "234": true, "250": true,
		"251": true, "252": true, "253": true, "254": true, "255": true,
		"256": true, "260": true, "263": true,
		"351": true, "352": true, "353": true, "354": true, "355": true,
		"356": true, "357": true, "358": true, "359": true, "370": true,
		"371": true, "372": true, "373": true, "374": true, "375": true,
		"376": true, "377": true, "380": true, "381": true, "382": true,
		"385": true, "386": true, "387": true, "389": true,
		"420": true, "421": true, "852": true, "853": true, "855": true,
		"856": true, "880": true, "886": true,
		"960": true, "961": true, "962": true, "963": true, "964": true,
		"965": true, "966": true, "967": true, "968": true, "970": true,
		"971": true, "972": true, "973": true, "974": true, "975": true,
		"976": true, "977": true,
		"992": true, "993": true, "994": true, "995": true, "996": true,
		"998": true,
	}

	// nationalLengths pins the exact national-number length for a short list
	// of high-volume countries. Everything else accepts 4-12 digits.
	nationalLengths = map[string]int{
		"1":   10,
		"44":  10,
		"91":  10,
		"966": 9,
		"971": 9,
	}
)

var (
	ErrEmpty          = errors.New("phone is empty")
	ErrNotDigits      = errors.New("phone contains non-digit characters")
	ErrNoCountryCode  = errors.New("phone has no recognizable country code")
	ErrBareTooShort   = errors.New("phone without + must include a country code (11-15 digits)")
	ErrNationalLength = errors.New("national number length is invalid for country code")
)

// Normalize validates a raw phone value and returns it in +<cc><national>
// form. Input is either already international (leading +) or bare digits that
// must carry the country code themselves (11-15 digits total).
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmpty
	}

	international := strings.HasPrefix(s, "+")
	if international {
		s = s[1:]
	}
	s = stripSeparators(s)

	if s == "" {
		return "", ErrEmpty
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", ErrNotDigits
		}
	}

	if !international && (len(s) < 11 || len(s) > 15) {
		return "", ErrBareTooShort
	}
	if international && (len(s) < 7 || len(s) > 15) {
		return "", fmt.Errorf("international number must be 7-15 digits, got %d", len(s))
	}

	code, national, ok := splitCountryCode(s)
	if !ok {
		return "", ErrNoCountryCode
	}

	if want, pinned := nationalLengths[code]; pinned {
		if len(national) != want {
			return "", fmt.Errorf("%w %s: expected %d digits, got %d", ErrNationalLength, code, want, len(national))
		}
	} else if len(national) < 4 || len(national) > 12 {
		return "", fmt.Errorf("%w %s: got %d digits", ErrNationalLength, code, len(national))
	}

	return "+" + code + national, nil
}

// splitCountryCode extracts the calling code by longest-prefix match.
func splitCountryCode(digits string) (code, national string, ok bool) {
	for _, n := range []int{3, 2, 1} {
		if len(digits) <= n {
			continue
		}
		prefix := digits[:n]
		if callingCodes[prefix] {
			return prefix, digits[n:], true
		}
	}
	return "", "", false
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}
