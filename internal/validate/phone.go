// Package validate implements the record quality gates of the pipeline.
//
// Gates come in two kinds. Filtering gates (numeric type, digit length)
// drop individual records and report how many were dropped; a run carries
// on with whatever survives. Blocking gates (schema, names, e-mails,
// currencies, item ids, amounts, batch sizes, message content) return a
// domain.SchemaError or domain.ConfigError and the run must stop before any
// provider call is made.
package validate

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// Report counts the records dropped by each filtering gate.
type Report struct {
	Input       int
	NonNumeric  int
	WrongLength int
	Retained    int
}

// Dropped returns the total number of records removed.
func (r Report) Dropped() int { return r.NonNumeric + r.WrongLength }

// CanonicalNumber returns the integer rendering of a numeric cell, the way a
// spreadsheet stores a phone number typed as a number: surrounding space is
// ignored, a zero fraction ("1111111111.0") is accepted, and leading zeros
// are dropped. ok is false for anything that is not a non-negative integer.
func CanonicalNumber(s string) (digits string, ok bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return "", false
		}
		s = s[:i]
	}
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return s, true
}

// NumericGate keeps records whose destination is numeric, rewriting the
// destination to its canonical digits. Order is preserved.
func NumericGate(records []domain.Record) (kept []domain.Record, dropped int) {
	kept = make([]domain.Record, 0, len(records))
	for _, r := range records {
		d, ok := CanonicalNumber(r.Destination)
		if !ok {
			dropped++
			continue
		}
		r.Destination = d
		kept = append(kept, r)
	}
	return kept, dropped
}

// LengthGate keeps records whose destination has exactly digits characters.
func LengthGate(records []domain.Record, digits int) (kept []domain.Record, dropped int) {
	kept = make([]domain.Record, 0, len(records))
	for _, r := range records {
		if len(r.Destination) != digits {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}

// PhoneChecks runs the numeric and length gates for country and logs the
// number of records each gate dropped. An unsupported country is a
// ConfigError; dropped records are not.
func PhoneChecks(lg zerolog.Logger, records []domain.Record, country string) ([]domain.Record, Report, error) {
	rep := Report{Input: len(records)}
	profile, err := domain.LookupCountry(country)
	if err != nil {
		return nil, rep, err
	}

	numeric, dropped := NumericGate(records)
	rep.NonNumeric = dropped
	if dropped > 0 {
		lg.Info().Int("dropped", dropped).Msg("not all numbers numeric; dropping before sending")
	}

	valid, dropped := LengthGate(numeric, profile.Digits)
	rep.WrongLength = dropped
	if dropped > 0 {
		lg.Info().Int("dropped", dropped).Int("digits", profile.Digits).
			Msg("not all numbers valid length; dropping before sending")
	}

	rep.Retained = len(valid)
	return valid, rep, nil
}

// FormatPhones prepends the country's dialing prefix to every destination.
func FormatPhones(records []domain.Record, country string) ([]domain.Recipient, error) {
	profile, err := domain.LookupCountry(country)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Recipient, len(records))
	for i, r := range records {
		out[i] = domain.Recipient{
			ExternalID: r.ExternalID,
			To:         profile.DialPrefix + r.Destination,
			Link:       r.Link,
		}
	}
	return out, nil
}
