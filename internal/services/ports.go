package services

import (
	"context"

	"github.com/tbourn/go-outreach-batch/internal/providers/bitly"
	"github.com/tbourn/go-outreach-batch/internal/providers/paypal"
	"github.com/tbourn/go-outreach-batch/internal/providers/twilio"
)

// Messenger is the SMS provider. *twilio.Client implements it.
type Messenger interface {
	Send(ctx context.Context, from, to, body string) (twilio.Message, error)
	Fetch(ctx context.Context, sid string) (twilio.Message, error)
	List(ctx context.Context, pageSize int) ([]twilio.Message, error)
}

// Shortener is the link shortening provider. *bitly.Client implements it.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// Payouts is the payout provider. *paypal.Client implements it.
type Payouts interface {
	Create(ctx context.Context, p paypal.Payout) (paypal.BatchDetail, error)
	Find(ctx context.Context, payoutBatchID string) (paypal.BatchDetail, error)
}

var (
	_ Messenger = (*twilio.Client)(nil)
	_ Shortener = (*bitly.Client)(nil)
	_ Payouts   = (*paypal.Client)(nil)
)
