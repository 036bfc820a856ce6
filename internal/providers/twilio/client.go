// Package twilio is a minimal client for the Twilio Programmable Messaging
// REST API: create a message, fetch one by SID, and page through the
// account's message history.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-outreach-batch/internal/providers"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api.twilio.com"

const apiVersion = "2010-04-01"

// Message is the subset of the Message resource the pipeline reads.
type Message struct {
	SID          string `json:"sid"`
	To           string `json:"to"`
	From         string `json:"from"`
	Status       string `json:"status"`
	ErrorCode    *int   `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// Code returns the error code, or 0 when the message has none.
func (m Message) Code() int {
	if m.ErrorCode == nil {
		return 0
	}
	return *m.ErrorCode
}

type page struct {
	Messages    []Message `json:"messages"`
	NextPageURI string    `json:"next_page_uri"`
}

type apiError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

// Client authenticates with the account SID and auth token.
type Client struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	HTTP       *http.Client
}

// New returns a client for baseURL (DefaultBaseURL when empty).
func New(baseURL, accountSID, authToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AccountSID: accountSID,
		AuthToken:  authToken,
		HTTP:       providers.NewHTTPClient(timeout),
	}
}

// ErrMissingCredentials is returned when the SID or token is empty.
var ErrMissingCredentials = errors.New("twilio: account SID and auth token are required")

// Send creates an outbound message.
func (c *Client) Send(ctx context.Context, from, to, body string) (Message, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	var m Message
	err := c.do(ctx, http.MethodPost, c.accountPath("Messages.json"), form.Encode(), &m)
	return m, err
}

// Fetch returns the current state of message sid.
func (c *Client) Fetch(ctx context.Context, sid string) (Message, error) {
	var m Message
	err := c.do(ctx, http.MethodGet, c.accountPath("Messages/"+url.PathEscape(sid)+".json"), "", &m)
	return m, err
}

// List pages through the account's message history, pageSize messages per
// request.
func (c *Client) List(ctx context.Context, pageSize int) ([]Message, error) {
	if pageSize < 1 {
		pageSize = 1000
	}
	var out []Message
	next := c.accountPath("Messages.json") + "?PageSize=" + strconv.Itoa(pageSize)
	for next != "" {
		var p page
		if err := c.do(ctx, http.MethodGet, next, "", &p); err != nil {
			return out, err
		}
		out = append(out, p.Messages...)
		next = p.NextPageURI
	}
	return out, nil
}

func (c *Client) accountPath(rest string) string {
	return fmt.Sprintf("/%s/Accounts/%s/%s", apiVersion, url.PathEscape(c.AccountSID), rest)
}

func (c *Client) do(ctx context.Context, method, path, form string, out any) error {
	if c.AccountSID == "" || c.AuthToken == "" {
		return ErrMissingCredentials
	}

	var body io.Reader
	if form != "" {
		body = strings.NewReader(form)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Accept", "application/json")
	if form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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
		apiErr := &providers.APIError{Provider: "twilio", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Message != "" {
			apiErr.Message = ae.Message
			if ae.Code != 0 {
				apiErr.Code = strconv.Itoa(ae.Code)
			}
		}
		return apiErr
	}
	return json.Unmarshal(raw, out)
}
