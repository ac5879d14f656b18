// internal/common/http/client.go
package http

import (
	"time"

	"github.com/go-resty/resty/v2"
)

type ClientOptions struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	rest *resty.Client
}

// NewClient builds a JSON client. Timeout bounds each call; callers may also pass a context
// deadline per request.
func NewClient(opts ClientOptions) *Client {
	rc := resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.AuthToken != "" {
		rc.SetAuthToken(opts.AuthToken)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{rest: rc}
}

// R starts a new request.
func (c *Client) R() *resty.Request {
	return c.rest.R()
}
