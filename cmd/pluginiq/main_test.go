package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/neomorfeo/pluginiq/internal/auth"
	"github.com/neomorfeo/pluginiq/internal/plugins/blog"
)

func TestEnvOrDefault_Fallback(t *testing.T) {
	if v := envOrDefault("PLUGINIQ_TEST_NONEXISTENT_KEY", "fallback"); v != "fallback" {
		t.Errorf("got %q, want %q", v, "fallback")
	}
}

func TestEnvOrDefault_EnvSet(t *testing.T) {
	t.Setenv("PLUGINIQ_TEST_KEY", "custom")

	if v := envOrDefault("PLUGINIQ_TEST_KEY", "fallback"); v != "custom" {
		t.Errorf("got %q, want %q", v, "custom")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("LICENSE_SWEEP_INTERVAL", "15m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.SweepInterval != 15*time.Minute {
		t.Errorf("SweepInterval = %v, want 15m", cfg.SweepInterval)
	}
	if cfg.BaseDomain != "localhost" {
		t.Errorf("BaseDomain = %q, want localhost", cfg.BaseDomain)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.LogLevel.String() != "DEBUG" {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"bad interval":   {"AUTH_SECRET": "x", "LICENSE_SWEEP_INTERVAL": "hourly"},
		"bad redis db":   {"AUTH_SECRET": "x", "REDIS_DB": "one"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("AUTH_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func get(t *testing.T, url, host, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if host != "" {
		req.Host = host
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

// TestSmoke wires the full stack like run() and verifies it responds.
func TestSmoke(t *testing.T) {
	cfg := config{
		DatabasePath:  t.TempDir() + "/test.db",
		BaseDomain:    "example.test",
		AuthSecret:    "test-secret",
		SweepInterval: time.Hour,
	}
	s, err := newServer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	status, body := get(t, srv.URL+"/api/plugins", "default.example.test", "")
	if status != http.StatusOK {
		t.Fatalf("GET /api/plugins status = %d, body %s", status, body)
	}
	var catalog struct {
		TenantID string `json:"tenantId"`
		Plugins  []struct {
			ID string `json:"id"`
		} `json:"plugins"`
	}
	if err := json.Unmarshal([]byte(body), &catalog); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if catalog.TenantID != "default" {
		t.Errorf("tenantId = %q, want default", catalog.TenantID)
	}
	if len(catalog.Plugins) != 1 || catalog.Plugins[0].ID != blog.ID {
		t.Errorf("plugins = %+v, want the blog plugin", catalog.Plugins)
	}

	token, err := s.signer.Issue(auth.Identity{UserID: "u-1", Role: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	if status, body := get(t, srv.URL+"/api/plugins/licenses", "default.example.test", token); status != http.StatusOK {
		t.Errorf("GET /api/plugins/licenses status = %d, body %s", status, body)
	}

	status, body = get(t, srv.URL+"/metrics", "", "")
	if status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", status)
	}
	if !strings.Contains(body, `pluginiq_plugin_events_total{kind="loaded",plugin_id="neomorfeo/blog"} 1`) {
		t.Errorf("metrics missing blog loaded event:\n%s", body)
	}
}

// TestRun exercises run() end to end: telemetry, River, HTTP server and
// graceful shutdown on SIGINT.
func TestRun(t *testing.T) {
	t.Setenv("DATABASE_PATH", t.TempDir()+"/test-run.db")
	t.Setenv("PORT", "19876")
	t.Setenv("AUTH_SECRET", "test-secret")
	t.Setenv("OTEL_EXPORTER", "none")

	errCh := make(chan error, 1)
	go func() { errCh <- run() }()

	serverURL := "http://localhost:19876"
	ready := false
	for i := 0; i < 50; i++ {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/api/plugins", nil)
		resp, reqErr := http.DefaultClient.Do(req)
		if reqErr == nil {
			resp.Body.Close()
			ready = resp.StatusCode == http.StatusOK
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not become ready within 5 seconds")
	}

	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("finding process: %v", err)
	}
	if err := proc.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("sending SIGINT: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not exit within 10 seconds")
	}
}

func TestRun_InvalidDB(t *testing.T) {
	t.Setenv("DATABASE_PATH", "/nonexistent/path/db.sqlite")
	t.Setenv("AUTH_SECRET", "test-secret")
	t.Setenv("OTEL_EXPORTER", "none")

	if err := run(); err == nil {
		t.Fatal("expected error for invalid database path, got nil")
	}
}
