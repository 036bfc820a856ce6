package runctx

import (
	"io"
	"regexp"
)

// Recipients appear in logs only through provider error messages; the
// patterns match the formats the pipeline sends to: E.164 numbers and
// e-mail addresses.
var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\+\d{8,15}\b`)
)

// Redact replaces e-mail addresses and E.164 numbers in s.
func Redact(s string) string {
	return string(redact([]byte(s)))
}

func redact(p []byte) []byte {
	p = emailRE.ReplaceAll(p, []byte("[REDACTED:email]"))
	return phoneRE.ReplaceAll(p, []byte("[REDACTED:phone]"))
}

// redactWriter scrubs every log event before passing it on. zerolog hands
// each event to Write whole, so patterns never straddle two writes.
type redactWriter struct {
	w io.Writer
}

func (rw redactWriter) Write(p []byte) (int, error) {
	if _, err := rw.w.Write(redact(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
