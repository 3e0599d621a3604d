// Package iam provides a client-side session and authorization SDK for the
// portfolio admin dashboard.
//
// The SDK defines the data model (Principal, AdminUser, Role) and the
// collaborator interfaces (IdentityProvider, AdminUserResolver, SnapshotStore).
// Concrete implementations are injected via Option functions so the Session
// Engine, CRUD client and route guards stay independent of any specific
// identity provider or backend.
//
// Example usage:
//
//	client, err := iam.NewClient(
//	    iam.Config{APIBaseURL: "https://api.example.com"},
//	    iam.WithIdentityProvider(provider),
//	    iam.WithAdminUserResolver(users),
//	)
package iam

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Client is the main entry point: configuration plus injected collaborators.
type Client struct {
	config    Config
	logger    *slog.Logger
	identity  IdentityProvider
	resolver  AdminUserResolver
	snapshots SnapshotStore
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger for the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithIdentityProvider sets the identity provider.
func WithIdentityProvider(p IdentityProvider) Option {
	return func(c *Client) { c.identity = p }
}

// WithAdminUserResolver sets the backend admin-user resolver.
func WithAdminUserResolver(r AdminUserResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithSnapshotStore sets where the activity snapshot is persisted.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(c *Client) { c.snapshots = s }
}

// NewClient creates a new client with the given configuration and options.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("iam: APIBaseURL is required")
	}

	c := &Client{config: cfg.withDefaults()}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Config returns the client configuration with defaults applied.
func (c *Client) Config() Config { return c.config }

// Logger returns the configured logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Identity returns the identity provider, or nil if not configured.
func (c *Client) Identity() IdentityProvider { return c.identity }

// Resolver returns the admin-user resolver, or nil if not configured.
func (c *Client) Resolver() AdminUserResolver { return c.resolver }

// Snapshots returns the snapshot store, or nil if not configured.
func (c *Client) Snapshots() SnapshotStore { return c.snapshots }

// BuildURL resolves an endpoint against the configured API base URL.
func (c *Client) BuildURL(endpoint string) string { return c.config.BuildURL(endpoint) }

// HealthCheck reports whether the collaborators a Session Engine needs are present.
func (c *Client) HealthCheck(_ context.Context) error {
	if c.identity == nil {
		return fmt.Errorf("iam: identity provider not configured")
	}
	if c.resolver == nil {
		return fmt.Errorf("iam: admin user resolver not configured")
	}
	return nil
}

// Close releases all resources held by the client.
// Any injected collaborator that implements io.Closer will be closed.
func (c *Client) Close() error {
	closers := []any{c.identity, c.resolver, c.snapshots}
	var firstErr error
	for _, svc := range closers {
		if cl, ok := svc.(io.Closer); ok && cl != nil {
			if err := cl.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
