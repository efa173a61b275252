package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	// tags travel unquoted in RFID:<tag> frames, so no delimiters or quotes
	reTag = regexp.MustCompile(`^[A-Za-z0-9 _.:-]{1,64}$`)
)

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 100 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Name validates an item, category or person name with a reasonable max length.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 80 {
		return "", false
	}
	return s, !strings.ContainsAny(s, "\r\n")
}

// Tag validates a hardware tag. Empty is allowed by callers that treat the
// item as not yet tagged; it is rejected here.
func Tag(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, reTag.MatchString(s)
}

// Price accepts a non-negative decimal and returns it as typed, trimmed.
// Empty means zero.
func Price(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "0", true
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return "", false
	}
	return s, true
}

// Stock parses a non-negative count; empty means the default of 1.
func Stock(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Date validates a YYYY-MM-DD date of birth.
func Date(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return "", false
	}
	return s, true
}

// Password enforces a length window and mixed character classes.
func Password(s string) bool {
	l := len(s)
	if l < 8 || l > 64 {
		return false
	}
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z':
			hasLower = true
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case '0' <= r && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
