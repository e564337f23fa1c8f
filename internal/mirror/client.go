package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// APIError is a non-2xx response from the plugin API.
type APIError struct {
	Status   int
	Code     string `json:"error"`
	Message  string `json:"message"`
	PluginID string `json:"pluginId"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("plugin api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("plugin api: %d %s", e.Status, e.Code)
}

type wireState struct {
	TenantID    string         `json:"tenantId"`
	PluginID    string         `json:"pluginId"`
	Status      string         `json:"status"`
	Version     string         `json:"version"`
	Config      map[string]any `json:"config"`
	Error       string         `json:"error"`
	InstalledAt time.Time      `json:"installedAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	EnabledAt   *time.Time     `json:"enabledAt"`
	DisabledAt  *time.Time     `json:"disabledAt"`
}

type wireCatalog struct {
	TenantID string            `json:"tenantId"`
	Plugins  []domain.Manifest `json:"plugins"`
	States   []wireState       `json:"states"`
}

type snapshot struct {
	TenantID string
	Plugins  []domain.Manifest
	States   []domain.PluginState
}

type apiClient struct {
	baseURL string
	host    string
	token   string
	http    *http.Client
}

func (c *apiClient) list(ctx context.Context) (snapshot, error) {
	var wire wireCatalog
	if err := c.do(ctx, http.MethodGet, "/api/plugins", nil, &wire); err != nil {
		return snapshot{}, err
	}

	snap := snapshot{TenantID: wire.TenantID, Plugins: wire.Plugins}
	for _, w := range wire.States {
		cfg := w.Config
		if cfg == nil {
			cfg = map[string]any{}
		}
		snap.States = append(snap.States, domain.PluginState{
			TenantID:    w.TenantID,
			PluginID:    w.PluginID,
			Status:      domain.PluginStatus(w.Status),
			Version:     w.Version,
			Config:      cfg,
			Error:       w.Error,
			InstalledAt: w.InstalledAt,
			UpdatedAt:   w.UpdatedAt,
			EnabledAt:   w.EnabledAt,
			DisabledAt:  w.DisabledAt,
		})
	}
	return snap, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.host != "" {
		req.Host = c.host
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}
