package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
)

// MaxBatchSize is the provider limit on items per payout batch.
const MaxBatchSize = 250

var emailRe = regexp.MustCompile(`(?i)^[\w.+-]+@[\w-]+(\.[\w-]+)*\.(com|org|edu)$`)

// RequireColumns is the structural gate: every column must be present.
func RequireColumns(t *table.Table, cols ...string) error {
	if missing := t.Missing(cols...); len(missing) > 0 {
		return domain.NewSchemaError(domain.ErrMissingColumns,
			"the input file must include %s", quoteJoin(missing))
	}
	return nil
}

// CheckNames requires a first name on every payee and title-cases it in place.
func CheckNames(payees []domain.Payee, tag language.Tag) error {
	caser := cases.Title(tag)
	for i := range payees {
		name := strings.TrimSpace(payees[i].FirstName)
		if name == "" {
			return domain.NewSchemaError(domain.ErrMissingNames, "row %d", payees[i].Row+1)
		}
		payees[i].FirstName = caser.String(name)
	}
	return nil
}

// CheckEmails requires every receiver_email to be well-formed.
func CheckEmails(payees []domain.Payee) error {
	for _, p := range payees {
		if !emailRe.MatchString(strings.TrimSpace(p.ReceiverEmail)) {
			return domain.NewSchemaError(domain.ErrMalformedEmail, "%q", p.ReceiverEmail)
		}
	}
	return nil
}

// NormalizeCurrencies upper-cases every currency in place and rejects
// anything outside the supported set.
func NormalizeCurrencies(payees []domain.Payee) error {
	for i := range payees {
		c, err := domain.ParseCurrency(string(payees[i].Currency))
		if err != nil {
			return err
		}
		payees[i].Currency = c
	}
	return nil
}

// CheckUniqueItemIDs requires item ids to be unique within each batch.
func CheckUniqueItemIDs(payees []domain.Payee) error {
	seen := make(map[string]map[string]struct{})
	for _, p := range payees {
		ids, ok := seen[p.BatchID]
		if !ok {
			ids = make(map[string]struct{})
			seen[p.BatchID] = ids
		}
		if _, dup := ids[p.ItemID]; dup {
			return domain.NewSchemaError(domain.ErrDuplicateItemID, "%q in batch %q", p.ItemID, p.BatchID)
		}
		ids[p.ItemID] = struct{}{}
	}
	return nil
}

// CheckValues parses every payout value into Amount.
func CheckValues(payees []domain.Payee) error {
	for i := range payees {
		v, err := strconv.ParseFloat(strings.TrimSpace(payees[i].Value), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.NewSchemaError(domain.ErrNonNumericValue, "%q", payees[i].Value)
		}
		payees[i].Amount = v
	}
	return nil
}

// CheckBatchSizes rejects any batch holding more than limit payees.
func CheckBatchSizes(payees []domain.Payee, limit int) error {
	counts := make(map[string]int)
	for _, p := range payees {
		counts[p.BatchID]++
		if counts[p.BatchID] > limit {
			return domain.NewSchemaError(domain.ErrBatchTooLarge, "batch %q exceeds %d items", p.BatchID, limit)
		}
	}
	return nil
}

// PayeeChecks runs every blocking payee gate in order and stops at the
// first failure. Names, currencies and amounts are normalized in place.
func PayeeChecks(payees []domain.Payee, maxBatch int) error {
	if err := CheckNames(payees, language.Und); err != nil {
		return err
	}
	if err := CheckEmails(payees); err != nil {
		return err
	}
	if err := NormalizeCurrencies(payees); err != nil {
		return err
	}
	if err := CheckUniqueItemIDs(payees); err != nil {
		return err
	}
	if err := CheckValues(payees); err != nil {
		return err
	}
	return CheckBatchSizes(payees, maxBatch)
}

func quoteJoin(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = "`" + c + "`"
	}
	return strings.Join(q, ", ")
}
