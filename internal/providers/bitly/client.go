// Package bitly shortens links through the Bitly v3 shorten endpoint using
// a generic access token.
package bitly

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tbourn/go-outreach-batch/internal/providers"
)

// DefaultBaseURL is the public API host.
const DefaultBaseURL = "https://api-ssl.bitly.com"

// ErrMissingToken is returned when no access token is configured.
var ErrMissingToken = errors.New("bitly: access token is required")

// StatusError is a response whose status_code is not 200. StatusTxt is the
// provider's short reason, e.g. "INVALID_URI" or "RATE_LIMIT_EXCEEDED".
type StatusError struct {
	StatusCode int
	StatusTxt  string
}

func (e *StatusError) Error() string {
	return "bitly: " + e.StatusTxt
}

type shortenResponse struct {
	StatusCode int             `json:"status_code"`
	StatusTxt  string          `json:"status_txt"`
	Data       json.RawMessage `json:"data"` // object on success, [] on error
}

type shortenData struct {
	URL string `json:"url"`
}

// Client calls the shorten endpoint.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New returns a client for baseURL (DefaultBaseURL when empty).
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    providers.NewHTTPClient(timeout),
	}
}

// Shorten returns the short link for longURL.
func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	if c.Token == "" {
		return "", ErrMissingToken
	}
	q := url.Values{}
	q.Set("access_token", c.Token)
	q.Set("longUrl", longURL)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v3/shorten?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	raw, err := providers.ReadBody(resp)
	if err != nil {
		return "", err
	}

	var sr shortenResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &providers.APIError{Provider: "bitly", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return "", err
	}
	var data shortenData
	if sr.StatusCode == http.StatusOK {
		_ = json.Unmarshal(sr.Data, &data)
	}
	if data.URL == "" {
		return "", &StatusError{StatusCode: sr.StatusCode, StatusTxt: sr.StatusTxt}
	}
	return data.URL, nil
}
