// Package paypal is a client for the PayPal Payouts REST API. Requests are
// authorized with an OAuth2 client-credentials token that is fetched and
// refreshed transparently.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/providers"
)

// API hosts per environment.
const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

// ErrMissingCredentials is returned when the client id or secret is empty.
var ErrMissingCredentials = errors.New("paypal: client id and secret are required")

// ErrUnknownMode is returned for an environment other than sandbox or live.
var ErrUnknownMode = errors.New("paypal: mode must be sandbox or live")

// BaseURLFor maps an environment name to its API host.
func BaseURLFor(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "sandbox", "":
		return SandboxBaseURL, nil
	case "live":
		return LiveBaseURL, nil
	}
	return "", ErrUnknownMode
}

// ---- wire types ----

// Amount is a decimal amount rendered with two fraction digits.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// Item is one payout to one receiver.
type Item struct {
	RecipientType string `json:"recipient_type"`
	Amount        Amount `json:"amount"`
	Receiver      string `json:"receiver"`
	Note          string `json:"note,omitempty"`
	SenderItemID  string `json:"sender_item_id"`
}

// SenderBatchHeader identifies a payout request on the sender side.
type SenderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject,omitempty"`
}

// Payout is a create-batch request.
type Payout struct {
	SenderBatchHeader SenderBatchHeader `json:"sender_batch_header"`
	Items             []Item            `json:"items"`
}

// BatchHeader is the provider's view of a batch.
type BatchHeader struct {
	PayoutBatchID     string            `json:"payout_batch_id"`
	BatchStatus       string            `json:"batch_status"`
	SenderBatchHeader SenderBatchHeader `json:"sender_batch_header"`
}

// ItemError names why an item failed.
type ItemError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ItemDetail is the provider's view of one item in a batch.
type ItemDetail struct {
	PayoutItemID      string `json:"payout_item_id"`
	TransactionStatus string `json:"transaction_status"`
	PayoutItem        struct {
		SenderItemID string `json:"sender_item_id"`
		Receiver     string `json:"receiver"`
	} `json:"payout_item"`
	Errors *ItemError `json:"errors,omitempty"`
}

// BatchDetail is the response of Create and Find.
type BatchDetail struct {
	BatchHeader BatchHeader  `json:"batch_header"`
	Items       []ItemDetail `json:"items"`
}

// PayoutItems flattens the batch items for reconciliation.
func (d BatchDetail) PayoutItems() []domain.PayoutItem {
	out := make([]domain.PayoutItem, len(d.Items))
	for i, it := range d.Items {
		out[i] = domain.PayoutItem{
			ItemID:            it.PayoutItem.SenderItemID,
			PayoutItemID:      it.PayoutItemID,
			TransactionStatus: it.TransactionStatus,
		}
		if it.Errors != nil {
			out[i].ErrorName = it.Errors.Name
		}
	}
	return out
}

type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

// ---- client ----

// Client calls the Payouts API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL whose requests carry a client-credentials
// token obtained from baseURL's token endpoint.
func New(ctx context.Context, baseURL, clientID, clientSecret string, timeout time.Duration) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrMissingCredentials
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := providers.NewHTTPClient(timeout)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	hc := cc.Client(ctx)
	hc.Timeout = timeout
	return &Client{BaseURL: baseURL, HTTP: hc}, nil
}

// Create submits a payout batch.
func (c *Client) Create(ctx context.Context, p Payout) (BatchDetail, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return BatchDetail{}, err
	}
	var out BatchDetail
	err = c.do(ctx, http.MethodPost, "/v1/payments/payouts", b, &out)
	return out, err
}

// Find looks a batch up by its payout_batch_id.
func (c *Client) Find(ctx context.Context, payoutBatchID string) (BatchDetail, error) {
	var out BatchDetail
	err := c.do(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(payoutBatchID)+"?page_size=1000", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader = http.NoBody
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	raw, err := providers.ReadBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &providers.APIError{Provider: "paypal", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Name != "" {
			apiErr.Code = ae.Name
			apiErr.Message = ae.Message
		}
		return apiErr
	}
	return json.Unmarshal(raw, out)
}
