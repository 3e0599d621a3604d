// Package public reads the marketing site's unauthenticated mirror routes and
// submits the contact form.
package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/crud"
)

// Public read-only endpoints.
const (
	EndpointProjects     = "projects"
	EndpointSkills       = "skills"
	EndpointExperiences  = "experiences"
	EndpointEducations   = "educations"
	EndpointAbout        = "about"
	EndpointTestimonials = "testimonials"
	EndpointSocialLinks  = "sociallinks"
	EndpointSettings     = "settings"
	EndpointServices     = "services"
	EndpointContacts     = "contacts"
)

// ContactForm is a visitor's message. Fields are trimmed before validation.
type ContactForm struct {
	Name    string `json:"name" validate:"required,min=1,max=100"`
	Email   string `json:"email" validate:"required,email,min=5,max=254"`
	Message string `json:"message" validate:"required,min=1,max=2000"`
}

// ContactReceipt is the backend's acknowledgement of a contact submission.
type ContactReceipt struct {
	Message string `json:"message"`
}

// Client talks to the public routes without credentials.
type Client struct {
	iam        *iam.Client
	httpClient *http.Client
	logger     *slog.Logger
	validate   *validator.Validate
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Client) { p.httpClient = c }
}

// New creates a public Client resolving URLs against client's base URL.
func New(client *iam.Client, opts ...Option) *Client {
	c := &Client{
		iam:        client,
		httpClient: &http.Client{Timeout: client.Config().HTTPTimeout},
		logger:     client.Logger(),
		validate:   validator.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// List GETs a public collection. Non-2xx fails with
// "Failed to fetch <endpoint>: <status text>".
func List[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	url := c.iam.BuildURL(crud.BuildPath(endpoint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("iam/public: create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &iam.APIError{Op: "list " + endpoint, Message: "Failed to fetch " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &iam.APIError{
			Op:         "list " + endpoint,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Failed to fetch %s: %s", endpoint, http.StatusText(resp.StatusCode)),
			Body:       string(data),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("iam/public: read %s: %w", endpoint, err)
	}
	items, err := crud.DecodeList[T](data)
	if err != nil {
		return nil, fmt.Errorf("iam/public: decode %s: %w", endpoint, err)
	}
	return items, nil
}

func (c *Client) Projects(ctx context.Context) ([]crud.Project, error) {
	return List[crud.Project](ctx, c, EndpointProjects)
}

func (c *Client) Skills(ctx context.Context) ([]crud.Skill, error) {
	return List[crud.Skill](ctx, c, EndpointSkills)
}

func (c *Client) Experiences(ctx context.Context) ([]crud.Experience, error) {
	return List[crud.Experience](ctx, c, EndpointExperiences)
}

func (c *Client) Educations(ctx context.Context) ([]crud.Education, error) {
	return List[crud.Education](ctx, c, EndpointEducations)
}

func (c *Client) About(ctx context.Context) ([]crud.About, error) {
	return List[crud.About](ctx, c, EndpointAbout)
}

func (c *Client) Testimonials(ctx context.Context) ([]crud.Testimonial, error) {
	return List[crud.Testimonial](ctx, c, EndpointTestimonials)
}

func (c *Client) SocialLinks(ctx context.Context) ([]crud.SocialLink, error) {
	return List[crud.SocialLink](ctx, c, EndpointSocialLinks)
}

func (c *Client) Settings(ctx context.Context) ([]crud.Setting, error) {
	return List[crud.Setting](ctx, c, EndpointSettings)
}

func (c *Client) Services(ctx context.Context) ([]crud.Service, error) {
	return List[crud.Service](ctx, c, EndpointServices)
}

// SubmitContact validates form and POSTs it to the contacts route.
func (c *Client) SubmitContact(ctx context.Context, form ContactForm) (*ContactReceipt, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	form.Message = strings.TrimSpace(form.Message)
	if err := c.validate.Struct(form); err != nil {
		return nil, fmt.Errorf("iam/public: invalid contact form: %w", err)
	}

	payload, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("iam/public: encode contact form: %w", err)
	}
	url := c.iam.BuildURL(crud.BuildPath(EndpointContacts))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("iam/public: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	failMsg := "Failed to submit to " + EndpointContacts
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &iam.APIError{Op: "submit " + EndpointContacts, Message: failMsg, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := failMsg
		var e struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(data, &e) == nil && e.Detail != "" {
			msg = e.Detail
		}
		c.logger.Warn("contact submission rejected", "status", resp.StatusCode)
		return nil, &iam.APIError{Op: "submit " + EndpointContacts, StatusCode: resp.StatusCode, Message: msg, Body: string(data)}
	}

	var receipt ContactReceipt
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &receipt); err != nil {
			return nil, fmt.Errorf("iam/public: decode contact receipt: %w", err)
		}
	}
	return &receipt, nil
}
