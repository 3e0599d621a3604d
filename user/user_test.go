package user

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	iam "github.com/chimerakang/portfolio-iam"
	"github.com/chimerakang/portfolio-iam/fake"
	"github.com/chimerakang/portfolio-iam/transport"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	users      map[string]*iam.AdminUser
	updated    *UpdateRequest
	shouldFail bool
}

func (m *mockBackend) GetCurrent(ctx context.Context, token string) (*iam.AdminUser, error) {
	if m.shouldFail {
		return nil, &iam.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
	}
	u, ok := m.users[token]
	if !ok {
		return nil, &iam.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return u, nil
}

func (m *mockBackend) UpdateCurrent(ctx context.Context, req UpdateRequest) (*iam.AdminUser, error) {
	if m.shouldFail {
		return nil, errors.New("update failed")
	}
	m.updated = &req
	return &iam.AdminUser{DisplayName: req.DisplayName, Email: req.Email}, nil
}

func TestCurrentAdminUser_Success(t *testing.T) {
	backend := &mockBackend{users: map[string]*iam.AdminUser{"tok": {ID: 7, Email: "alice@example.com"}}}
	svc := New(backend)

	result, err := svc.CurrentAdminUser(context.Background(), "tok")
	if err != nil {
		t.Fatalf("CurrentAdminUser() error: %v", err)
	}
	if result.ID != 7 {
		t.Errorf("expected id 7, got %d", result.ID)
	}
}

func TestCurrentAdminUser_KeepsStatus(t *testing.T) {
	svc := New(&mockBackend{users: map[string]*iam.AdminUser{}})

	_, err := svc.CurrentAdminUser(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if iam.StatusCode(err) != http.StatusNotFound {
		t.Errorf("StatusCode() = %d, want 404", iam.StatusCode(err))
	}
}

func TestCurrentAdminUser_EmptyToken(t *testing.T) {
	svc := New(&mockBackend{})
	if _, err := svc.CurrentAdminUser(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestUpdateCurrent_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     UpdateRequest
		wantErr bool
	}{
		{"display name", UpdateRequest{DisplayName: "Alice"}, false},
		{"email", UpdateRequest{Email: "alice@example.com"}, false},
		{"empty", UpdateRequest{}, true},
		{"bad email", UpdateRequest{Email: "not-an-email"}, true},
		{"long name", UpdateRequest{DisplayName: strings.Repeat("a", 101)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{}
			_, err := New(backend).UpdateCurrent(context.Background(), tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpdateCurrent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && backend.updated != nil {
				t.Error("backend should not be called for an invalid update")
			}
		})
	}
}

func newHTTPBackend(t *testing.T, srv *httptest.Server) *HTTPBackend {
	t.Helper()
	client, err := iam.NewClient(iam.Config{APIBaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	idp := fake.NewIdentityProvider(fake.WithPrincipal(fake.NewPrincipal("u1", "u1@example.com")))
	return NewHTTPBackend(client, transport.New(idp))
}

func TestHTTPBackend_GetCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/current-admin-user/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":3,"firebase_uid":"u1","email":"u1@example.com","display_name":"U",
			"role":{"id":1,"name":"editor","description":"","permissions":{"permissions":["manage_projects"]}},
			"is_active":true,"last_login":null,"created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-02T00:00:00Z"}`)
	}))
	defer srv.Close()

	u, err := newHTTPBackend(t, srv).GetCurrent(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("GetCurrent() error: %v", err)
	}
	if u.FirebaseUID != "u1" || !u.HasPermission("manage_projects") {
		t.Errorf("GetCurrent() = %+v", u)
	}
}

func TestHTTPBackend_GetCurrentErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail":"Token used too early"}`)
	}))
	defer srv.Close()

	_, err := newHTTPBackend(t, srv).GetCurrent(context.Background(), "tok")
	var apiErr *iam.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("GetCurrent() error = %v, want *iam.APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || !strings.Contains(apiErr.Body, "Token used too early") {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestHTTPBackend_UpdateCurrent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer "+fake.TokenFor("u1") {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"id":3,"display_name":"New Name"}`)
	}))
	defer srv.Close()

	u, err := New(newHTTPBackend(t, srv)).UpdateCurrent(context.Background(), UpdateRequest{DisplayName: "New Name"})
	if err != nil {
		t.Fatalf("UpdateCurrent() error: %v", err)
	}
	if u.DisplayName != "New Name" {
		t.Errorf("DisplayName = %q", u.DisplayName)
	}
	if _, ok := got["email"]; ok {
		t.Error("empty email should be omitted from the PATCH body")
	}
}

func TestHTTPBackend_UpdateCurrentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newHTTPBackend(t, srv).UpdateCurrent(context.Background(), UpdateRequest{DisplayName: "x"})
	var apiErr *iam.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Failed to update profile" {
		t.Fatalf("UpdateCurrent() error = %v, want Failed to update profile", err)
	}
}
