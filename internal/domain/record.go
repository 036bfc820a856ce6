// Package domain defines the records that flow through the outreach
// pipeline: input rows, formatted recipients, payout payees, batch
// assignments, per-item dispatch results, and merge outcomes. It also holds
// the country/currency lookup tables and the run-level error taxonomy.
package domain

// Column names of the input and output tables.
const (
	ColExternalID = "ExternalDataReference"
	ColPhone      = "SMS_PHONE_CLEAN"
	ColURL        = "url"
	ColLink       = "link"

	ColMessageStatus    = "MessageStatus"
	ColMessageReference = "MessageReference"

	ColBatchID           = "batch_id"
	ColFirstName         = "first_name"
	ColReceiverEmail     = "receiver_email"
	ColValue             = "value"
	ColCurrency          = "currency"
	ColItemID            = "item_id"
	ColProcessedCode     = "processed_code"
	ColPayoutItemID      = "payout_item_id"
	ColTransactionStatus = "transaction_status"
	ColError             = "error"
)

// Record is one SMS input row. ExternalID is the reconciliation key and is
// never rewritten; Row points back into the source table.
type Record struct {
	Row         int
	ExternalID  string
	Destination string
	Link        string
}

// Recipient is a Record whose destination has been formatted to E.164.
type Recipient struct {
	ExternalID string
	To         string
	Link       string
}

// Payee is one payout worksheet row.
type Payee struct {
	Row           int
	FirstName     string
	ReceiverEmail string
	Value         string
	Amount        float64
	Currency      Currency
	BatchID       string
	ItemID        string
	ProcessedCode string
}

// Assignment is the batch membership of one record ordinal.
type Assignment struct {
	BatchID string
	ItemID  string
}

// DispatchResult is the outcome of a single provider call. Key is the
// external identifier (SMS) or batch id (payouts). Err is set only when the
// call failed; Reference and Status are provider-defined.
type DispatchResult struct {
	Key       string
	Reference string
	Status    string
	Err       error
}

// OK reports whether the call succeeded.
func (r DispatchResult) OK() bool { return r.Err == nil }

// Outcome is one row of a result table to merge back onto an input table.
// Values line up with the merge columns.
type Outcome struct {
	Key    string
	Values []string
}

// PayoutItem is the provider-side state of one payout item, as reported
// when its batch is looked up after sending.
type PayoutItem struct {
	ItemID            string // sender_item_id
	PayoutItemID      string
	TransactionStatus string
	ErrorName         string
}
