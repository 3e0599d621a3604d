// Package crud provides one request pattern for every admin-manageable
// resource collection: JSON or multipart bodies, paginated or flat lists.
//
// Every call is a single authenticated round trip. There is no caching and no
// retry; callers re-fetch after a mutation.
package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/metrics"
	"github.com/chimerakang/portfolio-iam/transport"
)

// Client issues authenticated requests against admin collections.
type Client struct {
	iam       *iam.Client
	transport *transport.Client
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validate  *validator.Validate
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latency per collection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client resolving URLs against client's base URL and sending
// requests through tr.
func New(client *iam.Client, tr *transport.Client, opts ...Option) *Client {
	c := &Client{
		iam:       client,
		transport: tr,
		logger:    client.Logger(),
		metrics:   metrics.New(false),
		validate:  validator.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BuildPath ensures endpoint ends with exactly one trailing slash.
func BuildPath(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/"
}

func itemPath(endpoint string, id int64) string {
	return BuildPath(endpoint) + strconv.FormatInt(id, 10) + "/"
}

// URL returns the absolute collection URL for endpoint.
func (c *Client) URL(endpoint string) string {
	return c.iam.BuildURL(BuildPath(endpoint))
}

// Validate checks v against its validate struct tags.
func (c *Client) Validate(v any) error {
	return c.validate.Struct(v)
}

type call struct {
	op       string // list, get, create, update, patch, delete, upload
	endpoint string
	path     string
	method   string
	body     io.Reader
	form     *transport.Form
	failMsg  string
	detail   bool // prefer the body's "detail" over failMsg
}

// do performs one round trip and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, k call) ([]byte, error) {
	start := time.Now()
	body, err := c.roundTrip(ctx, k)
	c.metrics.RecordAPIRequest(strings.TrimRight(k.endpoint, "/"), k.op, err, time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("admin api request failed", "op", k.op, "endpoint", k.endpoint, "error", err)
	}
	return body, err
}

func (c *Client) roundTrip(ctx context.Context, k call) ([]byte, error) {
	resp, err := c.transport.Do(ctx, &transport.Request{
		Method: k.method,
		URL:    c.iam.BuildURL(k.path),
		Body:   k.body,
		Form:   k.form,
	})
	if err != nil {
		if errors.Is(err, iam.ErrNotAuthenticated) {
			return nil, fmt.Errorf("iam/crud: %s %s: %w", k.op, k.endpoint, err)
		}
		return nil, &iam.APIError{Op: k.op + " " + k.endpoint, Message: k.failMsg, Err: err}
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := k.failMsg
		if k.detail {
			if d := detailMessage(data); d != "" {
				msg = d
			}
		}
		return nil, &iam.APIError{
			Op:         k.op + " " + k.endpoint,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Body:       string(data),
		}
	}
	if readErr != nil {
		return nil, &iam.APIError{Op: k.op + " " + k.endpoint, StatusCode: resp.StatusCode, Message: k.failMsg, Err: readErr}
	}
	return data, nil
}

func detailMessage(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Detail
}

// DecodeList accepts {"results": [...]} or a bare array. A bare object without
// "results" is returned as a one-element list.
func DecodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []T{}, nil
	}
	if trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		if raw, ok := envelope["results"]; ok {
			var items []T
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, err
			}
			if items == nil {
				items = []T{}
			}
			return items, nil
		}
		var item T
		if err := json.Unmarshal(trimmed, &item); err != nil {
			return nil, err
		}
		return []T{item}, nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func decodeOne[T any](endpoint string, data []byte) (*T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("iam/crud: decode %s: %w", endpoint, err)
	}
	return &v, nil
}

func encodeJSON(endpoint string, v any) (io.Reader, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("iam/crud: encode %s: %w", endpoint, err)
	}
	return bytes.NewReader(payload), nil
}

// List GETs the collection.
func List[T any](ctx context.Context, c *Client, endpoint string) ([]T, error) {
	data, err := c.do(ctx, call{
		op:       "list",
		endpoint: endpoint,
		path:     BuildPath(endpoint),
		method:   http.MethodGet,
		failMsg:  "Failed to fetch " + endpoint,
	})
	if err != nil {
		return nil, err
	}
	items, err := DecodeList[T](data)
	if err != nil {
		return nil, fmt.Errorf("iam/crud: decode %s: %w", endpoint, err)
	}
	return items, nil
}

// Get GETs one item of the collection.
func Get[T any](ctx context.Context, c *Client, endpoint string, id int64) (*T, error) {
	data, err := c.do(ctx, call{
		op:       "get",
		endpoint: endpoint,
		path:     itemPath(endpoint, id),
		method:   http.MethodGet,
		failMsg:  fmt.Sprintf("Failed to fetch %s with id %d", endpoint, id),
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](endpoint, data)
}

// Create POSTs data as JSON.
func Create[T any](ctx context.Context, c *Client, endpoint string, data any) (*T, error) {
	return send[T](ctx, c, "create", endpoint, BuildPath(endpoint), http.MethodPost, data)
}

// Update PUTs data as JSON.
func Update[T any](ctx context.Context, c *Client, endpoint string, id int64, data any) (*T, error) {
	return send[T](ctx, c, "update", endpoint, itemPath(endpoint, id), http.MethodPut, data)
}

// Patch PATCHes a partial JSON document.
func Patch[T any](ctx context.Context, c *Client, endpoint string, id int64, fields any) (*T, error) {
	return send[T](ctx, c, "patch", endpoint, itemPath(endpoint, id), http.MethodPatch, fields)
}

func send[T any](ctx context.Context, c *Client, op, endpoint, path, method string, data any) (*T, error) {
	body, err := encodeJSON(endpoint, data)
	if err != nil {
		return nil, err
	}
	verb := "update"
	if op == "create" {
		verb = "create"
	}
	resp, err := c.do(ctx, call{
		op:       op,
		endpoint: endpoint,
		path:     path,
		method:   method,
		body:     body,
		failMsg:  fmt.Sprintf("Failed to %s %s", verb, endpoint),
		detail:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](endpoint, resp)
}

// CreateWithForm POSTs a multipart body.
func CreateWithForm[T any](ctx context.Context, c *Client, endpoint string, form *transport.Form) (*T, error) {
	return sendForm[T](ctx, c, "create", endpoint, BuildPath(endpoint), http.MethodPost, form)
}

// UpdateWithForm PUTs a multipart body.
func UpdateWithForm[T any](ctx context.Context, c *Client, endpoint string, id int64, form *transport.Form) (*T, error) {
	return sendForm[T](ctx, c, "update", endpoint, itemPath(endpoint, id), http.MethodPut, form)
}

func sendForm[T any](ctx context.Context, c *Client, op, endpoint, path, method string, form *transport.Form) (*T, error) {
	if form == nil {
		return nil, fmt.Errorf("iam/crud: %s %s: form is nil", op, endpoint)
	}
	resp, err := c.do(ctx, call{
		op:       op,
		endpoint: endpoint,
		path:     path,
		method:   method,
		form:     form,
		failMsg:  fmt.Sprintf("Failed to %s %s", op, endpoint),
		detail:   true,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[T](endpoint, resp)
}

// Delete DELETEs one item. A successful response carries no content.
func Delete(ctx context.Context, c *Client, endpoint string, id int64) error {
	_, err := c.do(ctx, call{
		op:       "delete",
		endpoint: endpoint,
		path:     itemPath(endpoint, id),
		method:   http.MethodDelete,
		failMsg:  fmt.Sprintf("Failed to delete %s with id %d", endpoint, id),
	})
	return err
}

// UploadResult is the backend's reply to a file upload.
type UploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// Upload POSTs file under the "image" field plus extra text fields.
func Upload(ctx context.Context, c *Client, endpoint string, file io.Reader, filename string, extra map[string]string) (*UploadResult, error) {
	form := transport.NewForm().AddFile("image", filename, file)
	for k, v := range extra {
		form.Add(k, v)
	}
	resp, err := c.do(ctx, call{
		op:       "upload",
		endpoint: endpoint,
		path:     BuildPath(endpoint),
		method:   http.MethodPost,
		form:     form,
		failMsg:  "Failed to upload file to " + endpoint,
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[UploadResult](endpoint, resp)
}
