// Package invite implements the invitation signup flow: look up an invite
// code, create the identity-provider account and link it to a new admin user.
package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/juju/clock"
	"golang.org/x/time/rate"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/audit"
)

// Signup attempt limits.
const (
	DefaultMaxAttempts = 3
	DefaultWindow      = 5 * time.Minute

	// DefaultKey is used when the caller has no per-client key.
	DefaultKey = "signup"
)

// User-facing messages.
const (
	MsgInvalidCode     = "Invalid or expired invitation code."
	MsgAcceptFailed    = "Failed to accept invitation."
	MsgPasswordsDiffer = "Passwords do not match."
)

// ErrTooManyAttempts is returned once a key has used up its signup attempts.
var ErrTooManyAttempts = errors.New("Too many signup attempts. Please wait 5 minutes before trying again.")

// Registrar creates identity-provider accounts.
// Implementations: firebase/.
type Registrar interface {
	SignUp(ctx context.Context, email, password, displayName string) (iam.Principal, error)
}

// Invitation is what the backend reveals about a pending invite code.
type Invitation struct {
	Email string `json:"email"`
	Role  struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"role"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Status    string     `json:"status"`
}

// AcceptRequest is the signup form. Fields are trimmed before validation,
// except the passwords.
type AcceptRequest struct {
	InviteCode      string `validate:"required,len=8,alphanum"`
	Email           string `validate:"required,email,min=5,max=254"`
	Password        string `validate:"required,min=8,max=128"`
	ConfirmPassword string `validate:"-"`
	DisplayName     string `validate:"required,min=1,max=100"`
}

// AcceptResult is the backend's reply to a successful acceptance.
type AcceptResult struct {
	Message   string         `json:"message"`
	AdminUser *iam.AdminUser `json:"admin_user"`
}

// Service validates and accepts invitations.
type Service struct {
	iam        *iam.Client
	registrar  Registrar
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
	audit      *audit.Logger
	validate   *validator.Validate

	maxAttempts int
	window      time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures the Service.
type Option func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithClock sets the time source of the attempt limiter.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithAudit records accepted and rejected signups.
func WithAudit(a *audit.Logger) Option {
	return func(s *Service) { s.audit = a }
}

// WithAttemptLimit allows n signup attempts per key, refilled one per window.
func WithAttemptLimit(n int, window time.Duration) Option {
	return func(s *Service) {
		s.maxAttempts = n
		s.window = window
	}
}

// New creates a Service. registrar may be nil if only Validate is used.
func New(client *iam.Client, registrar Registrar, opts ...Option) *Service {
	s := &Service{
		iam:         client,
		registrar:   registrar,
		httpClient:  &http.Client{Timeout: client.Config().HTTPTimeout},
		logger:      client.Logger(),
		clock:       clock.WallClock,
		validate:    validator.New(),
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultWindow,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Validate looks up code and returns the invitation it belongs to.
func (s *Service) Validate(ctx context.Context, code string) (*Invitation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &iam.APIError{Op: "validate invitation", Message: MsgInvalidCode}
	}
	u := s.iam.BuildURL("validate-invitation/?code=" + url.QueryEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("iam/invite: create request: %w", err)
	}

	var inv Invitation
	if err := s.do(req, "validate invitation", MsgInvalidCode, &inv); err != nil {
		s.logger.Error("failed to validate invitation code", "error", err)
		return nil, err
	}
	return &inv, nil
}

// Accept runs the signup: attempt limit, input validation, account creation
// and backend acceptance. key identifies the client for attempt limiting.
// A successful acceptance resets the key's attempts.
func (s *Service) Accept(ctx context.Context, key string, req AcceptRequest) (*AcceptResult, error) {
	if key == "" {
		key = DefaultKey
	}
	if !s.allow(key) {
		s.logger.Warn("signup attempts exhausted", "key", key)
		return nil, ErrTooManyAttempts
	}

	req.InviteCode = strings.TrimSpace(req.InviteCode)
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("iam/invite: invalid signup: %w", err)
	}
	if req.Password != req.ConfirmPassword {
		return nil, errors.New(MsgPasswordsDiffer)
	}
	if s.registrar == nil {
		return nil, fmt.Errorf("iam/invite: no registrar configured")
	}

	principal, err := s.registrar.SignUp(ctx, req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.logger.Error("failed to create account", "email", req.Email, "error", err)
		s.record(req.Email, "", audit.ActionInvitationRejected, err)
		return nil, fmt.Errorf("iam/invite: sign up: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"invite_code":  req.InviteCode,
		"firebase_uid": principal.UID(),
		"display_name": req.DisplayName,
	})
	if err != nil {
		return nil, fmt.Errorf("iam/invite: encode acceptance: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.iam.BuildURL("accept-invitation/"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("iam/invite: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var res AcceptResult
	if err := s.do(httpReq, "accept invitation", MsgAcceptFailed, &res); err != nil {
		// The identity account stays; an admin can re-issue the invitation.
		s.logger.Error("failed to accept invitation", "email", req.Email, "uid", principal.UID(), "error", err)
		s.record(req.Email, principal.UID(), audit.ActionInvitationRejected, err)
		return nil, err
	}

	s.reset(key)
	s.record(req.Email, principal.UID(), audit.ActionInvitationAccepted, nil)
	s.logger.Info("invitation accepted", "email", req.Email, "uid", principal.UID())
	return &res, nil
}

// do sends req and decodes a 2xx body into out. Failures carry the body's
// "error" field or failMsg.
func (s *Service) do(req *http.Request, op, failMsg string, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &iam.APIError{Op: op, Message: failMsg, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := failMsg
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &iam.APIError{Op: op, StatusCode: resp.StatusCode, Message: msg, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("iam/invite: decode %s: %w", op, err)
	}
	return nil
}

func (s *Service) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.window), s.maxAttempts)
		s.limiters[key] = l
	}
	return l.AllowN(s.clock.Now(), 1)
}

func (s *Service) reset(key string) {
	s.mu.Lock()
	delete(s.limiters, key)
	s.mu.Unlock()
}

func (s *Service) record(email, uid, action string, err error) {
	e := audit.Event{
		PrincipalID: uid,
		Email:       email,
		Action:      action,
		Resource:    "admin-invitations",
		Result:      audit.ResultSuccess,
	}
	if err != nil {
		e.Result = audit.ResultFailure
		e.Error = err.Error()
	}
	s.audit.Log(e)
}
