package iam_test

import (
	"testing"
	"time"

	iam "github.com/chimerakang/portfolio-iam"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		base     string
		endpoint string
		want     string
	}{
		{"", "current-admin-user/", "/api/current-admin-user/"},
		{"", "/admin/projects/", "/api/admin/projects/"},
		{"/backend", "admin/skills/", "/backend/admin/skills/"},
		{"https://api.example.com", "admin/projects/", "https://api.example.com/api/admin/projects/"},
		{"https://api.example.com/", "admin/projects/", "https://api.example.com/api/admin/projects/"},
		{"https://api.example.com/api", "admin/projects/", "https://api.example.com/api/admin/projects/"},
		{"http://localhost:8000/api/", "/analytics", "http://localhost:8000/api/analytics"},
	}
	for _, tt := range tests {
		cfg := iam.Config{APIBaseURL: tt.base}
		if got := cfg.BuildURL(tt.endpoint); got != tt.want {
			t.Errorf("BuildURL(%q) with base %q = %q, want %q", tt.endpoint, tt.base, got, tt.want)
		}
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORTFOLIO_API_BASE_URL", "https://api.example.com")
	t.Setenv("PORTFOLIO_FIREBASE_API_KEY", "key-123")
	t.Setenv("PORTFOLIO_INACTIVITY_LIMIT", "30m")
	t.Setenv("PORTFOLIO_METRICS_ENABLED", "true")

	cfg, err := iam.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.FirebaseAPIKey != "key-123" {
		t.Errorf("FirebaseAPIKey = %q", cfg.FirebaseAPIKey)
	}
	if cfg.InactivityLimit != 30*time.Minute {
		t.Errorf("InactivityLimit = %v, want 30m", cfg.InactivityLimit)
	}
	if cfg.LoadingTimeout != 10*time.Second {
		t.Errorf("LoadingTimeout = %v, want default 10s", cfg.LoadingTimeout)
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should be true")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("PORTFOLIO_LOADING_TIMEOUT", "soon")
	if _, err := iam.LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for invalid duration")
	}
}
