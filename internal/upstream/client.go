package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/multierr"

	"github.com/angeloszaimis/gemini-proxy/config"
)

const redactedKey = "REDACTED"

// Response is a successful upstream answer. Body is guaranteed to be valid JSON.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// Client sends generateContent calls to a single model.
type Client struct {
	endpoint   string
	redacted   string
	model      string
	hasKey     bool
	httpClient *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New builds a client for <base>/v1beta/models/<model>:generateContent.
// No timeout is set on the default http.Client; calls last as long as the
// upstream takes.
func New(cfg config.UpstreamConfig, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}

	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", cfg.BaseURL)
	}

	if cfg.Model == "" {
		return nil, errors.New("upstream model must not be empty")
	}

	c := &Client{
		endpoint:   endpointURL(base, cfg.Model, cfg.APIKey),
		redacted:   endpointURL(base, cfg.Model, redactedKey),
		model:      cfg.Model,
		hasKey:     cfg.APIKey != "",
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func endpointURL(base *url.URL, model, key string) string {
	u := base.JoinPath("v1beta", "models", model+":generateContent")

	q := url.Values{}
	q.Set("key", key)
	u.RawQuery = q.Encode()

	return u.String()
}

// HasCredential reports whether an API key was configured.
func (c *Client) HasCredential() bool {
	return c.hasKey
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the upstream URL with the credential replaced, for logging.
func (c *Client) Endpoint() string {
	return c.redacted
}

// Generate posts payload to the upstream and returns its JSON answer.
func (c *Client) Generate(ctx context.Context, payload []byte) (resp *Response, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.redact(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.redact(err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(res.Body))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{
			StatusCode: res.StatusCode,
			Body:       string(body),
		}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%w (status %d, %d bytes)", ErrInvalidResponse, res.StatusCode, len(body))
	}

	return &Response{
		StatusCode: res.StatusCode,
		Body:       body,
	}, nil
}

// redact swaps the keyed URL inside a *url.Error for its redacted form.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: c.redacted,
			Err: urlErr.Err,
		}
	}

	return err
}
