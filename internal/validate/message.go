package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// Payout message limits, in characters.
const (
	MaxSubjectRunes = 50
	MaxBodyRunes    = 450
)

// CheckMessage requires a non-empty SMS body.
func CheckMessage(body string) error {
	if strings.TrimSpace(body) == "" {
		return domain.NewSchemaError(domain.ErrEmptyMessage, "")
	}
	return nil
}

// CheckPayoutMessage enforces the payout subject and body limits.
func CheckPayoutMessage(subject, body string) error {
	switch n := utf8.RuneCountInString(subject); {
	case strings.TrimSpace(subject) == "":
		return domain.NewSchemaError(domain.ErrEmptySubject, "")
	case n > MaxSubjectRunes:
		return domain.NewSchemaError(domain.ErrSubjectTooLong, "%d > %d characters", n, MaxSubjectRunes)
	}
	switch n := utf8.RuneCountInString(body); {
	case strings.TrimSpace(body) == "":
		return domain.NewSchemaError(domain.ErrEmptyMessage, "")
	case n > MaxBodyRunes:
		return domain.NewSchemaError(domain.ErrBodyTooLong, "%d > %d characters", n, MaxBodyRunes)
	}
	return nil
}
