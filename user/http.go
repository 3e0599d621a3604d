package user

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/transport"
)

const currentAdminUserPath = "current-admin-user/"

// HTTPBackend talks to the backend's current-admin-user/ route.
type HTTPBackend struct {
	url        string
	httpClient *http.Client
	transport  *transport.Client
	logger     *slog.Logger
}

var _ Backend = (*HTTPBackend)(nil)

// HTTPOption configures the HTTPBackend.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient sets the client used for token-scoped lookups.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) { b.httpClient = c }
}

// NewHTTPBackend resolves current-admin-user/ against client's base URL.
// Lookups use the token handed in by the caller; updates go through tr.
func NewHTTPBackend(client *iam.Client, tr *transport.Client, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		url:        client.BuildURL(currentAdminUserPath),
		httpClient: &http.Client{Timeout: client.Config().HTTPTimeout},
		transport:  tr,
		logger:     client.Logger(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *HTTPBackend) GetCurrent(ctx context.Context, token string) (*iam.AdminUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &iam.APIError{Op: "get current admin user", Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		b.logger.Debug("current admin user lookup failed", "status", resp.StatusCode)
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &iam.APIError{
			Op:         "get current admin user",
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       string(body),
		}
	}

	var u iam.AdminUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode admin user: %w", err)
	}
	return &u, nil
}

func (b *HTTPBackend) UpdateCurrent(ctx context.Context, r UpdateRequest) (*iam.AdminUser, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	resp, err := b.transport.Do(ctx, &transport.Request{
		Method: http.MethodPatch,
		URL:    b.url,
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &iam.APIError{
			Op:         "update current admin user",
			StatusCode: resp.StatusCode,
			Message:    "Failed to update profile",
			Body:       string(body),
		}
	}

	var u iam.AdminUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode admin user: %w", err)
	}
	return &u, nil
}
