// Package transport attaches the signed-in principal's bearer token to
// outgoing backend requests.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerRequestID     = "X-Request-Id"

	contentTypeJSON = "application/json"
)

// Request describes an outgoing authenticated call.
type Request struct {
	Method string
	URL    string

	// Header accepts map[string]string, [][2]string, http.Header or nil.
	Header any

	// Body is a JSON payload. It is ignored when Form is set.
	Body io.Reader

	// Form makes the request multipart/form-data.
	Form *Form
}

// Client performs authenticated requests on behalf of the current principal.
type Client struct {
	principals iam.PrincipalSource
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Client) { t.httpClient = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Client) { t.logger = l }
}

// New creates a Client that reads the current principal from src.
func New(src iam.PrincipalSource, opts ...Option) *Client {
	c := &Client{
		principals: src,
		httpClient: &http.Client{Timeout: iam.DefaultHTTPTimeout},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do sends r with an "Authorization: Bearer <token>" header.
// It returns iam.ErrNotAuthenticated without touching the network when no
// principal is signed in.
func (c *Client) Do(ctx context.Context, r *Request) (*http.Response, error) {
	p := c.principals.CurrentPrincipal()
	if p == nil {
		return nil, iam.ErrNotAuthenticated
	}

	token, err := p.Token(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("iam/transport: get token: %w", err)
	}

	multipart := r.Form != nil
	headers, err := BuildHeaders(r.Header, token, multipart)
	if err != nil {
		return nil, err
	}

	body := r.Body
	var formContentType string
	if multipart {
		body, formContentType, err = r.Form.Encode()
		if err != nil {
			return nil, fmt.Errorf("iam/transport: encode form: %w", err)
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("iam/transport: create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	// The encoder owns the boundary, the same way a browser fills it in for FormData.
	if formContentType != "" {
		req.Header.Set(headerContentType, formContentType)
	}
	if req.Header.Get(headerRequestID) == "" {
		req.Header.Set(headerRequestID, uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("authenticated request failed", "method", method, "url", r.URL, "error", err)
		return nil, fmt.Errorf("iam/transport: %s %s: %w", method, r.URL, err)
	}
	c.logger.Debug("authenticated request", "method", method, "url", r.URL, "status", resp.StatusCode)
	return resp, nil
}

// BuildHeaders normalizes src and merges the bearer token into it.
// JSON requests get Content-Type application/json; multipart requests carry no
// Content-Type key at all.
func BuildHeaders(src any, token string, multipart bool) (map[string]string, error) {
	headers, err := NormalizeHeaders(src)
	if err != nil {
		return nil, err
	}
	headers[headerAuthorization] = "Bearer " + token
	if multipart {
		delete(headers, headerContentType)
	} else {
		headers[headerContentType] = contentTypeJSON
	}
	return headers, nil
}

// NormalizeHeaders flattens a map, a list of pairs or an http.Header into one
// map keyed by canonical header names.
func NormalizeHeaders(src any) (map[string]string, error) {
	out := make(map[string]string)
	switch h := src.(type) {
	case nil:
	case map[string]string:
		for k, v := range h {
			out[http.CanonicalHeaderKey(k)] = v
		}
	case [][2]string:
		for _, kv := range h {
			out[http.CanonicalHeaderKey(kv[0])] = kv[1]
		}
	case http.Header:
		for k, vs := range h {
			out[http.CanonicalHeaderKey(k)] = strings.Join(vs, ", ")
		}
	default:
		return nil, fmt.Errorf("iam/transport: unsupported header source %T", src)
	}
	return out, nil
}
