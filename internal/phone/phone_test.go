package phone

import (
	"errors"
	"testing"
)

func TestNormalizeInternational(t *testing.T) {
	got, err := Normalize("+919876543210")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+919876543210" {
		t.Errorf("expected +919876543210, got %s", got)
	}
}

func TestNormalizeBareWithCountryCode(t *testing.T) {
	got, err := Normalize("919876543210")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+919876543210" {
		t.Errorf("expected +919876543210, got %s", got)
	}
}

func TestNormalizeBareWithoutCountryCodeRejected(t *testing.T) {
	_, err := Normalize("9876543210")
	if !errors.Is(err, ErrBareTooShort) {
		t.Errorf("expected ErrBareTooShort, got %v", err)
	}
}

func TestNormalizeLongestPrefixWins(t *testing.T) {
	// 966 must match as Saudi Arabia (3-digit), not 96 or 9.
	got, err := Normalize("+966512345678")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+966512345678" {
		t.Errorf("expected +966512345678, got %s", got)
	}
}

func TestNormalizeNationalLengthCheck(t *testing.T) {
	cases := []struct {
		in string
	}{
		{"+96651234567"},   // 966 wants 9 national digits, got 8
		{"+1415555"},       // 1 wants 10, got 6
		{"+9198765432109"}, // 91 wants 10, got 11
	}
	for _, c := range cases {
		if _, err := Normalize(c.in); !errors.Is(err, ErrNationalLength) {
			t.Errorf("Normalize(%q): expected ErrNationalLength, got %v", c.in, err)
		}
	}
}

func TestNormalizeSeparatorsStripped(t *testing.T) {
	got, err := Normalize("+1 (415) 555-0134")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155550134" {
		t.Errorf("expected +14155550134, got %s", got)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "+", "call-me-maybe", "+91abcdefghij"} {
		if _, err := Normalize(in); err == nil {
			t.Errorf("Normalize(%q): expected error, got none", in)
		}
	}
}

func TestNormalizeUnknownCountryCode(t *testing.T) {
	// 999 / 99 / 9 are not in the allow-list.
	if _, err := Normalize("+99912345678"); !errors.Is(err, ErrNoCountryCode) {
		t.Errorf("expected ErrNoCountryCode, got %v", err)
	}
}
