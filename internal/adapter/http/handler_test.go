package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/pluginiq/internal/adapter/fsm"
	adapter "github.com/neomorfeo/pluginiq/internal/adapter/http"
	"github.com/neomorfeo/pluginiq/internal/adapter/sqlite"
	"github.com/neomorfeo/pluginiq/internal/app"
	"github.com/neomorfeo/pluginiq/internal/auth"
	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/migration"
	"github.com/neomorfeo/pluginiq/internal/plugins/blog"
	"github.com/neomorfeo/pluginiq/internal/registry"
	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

const (
	baseDomain  = "example.test"
	defaultHost = "default.example.test"
	acmeHost    = "acme.example.test"
)

type testEnv struct {
	srv    *httptest.Server
	store  *sqlite.Store
	signer *auth.Signer
}

// newTestEnv creates a full-stack httptest.Server with SQLite in-memory.
func newTestEnv(t *testing.T, manifests ...domain.Manifest) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Tenants().Create(ctx, domain.NewTenant("t-acme", "Acme", "acme", "free")))

	reg := registry.New(fsm.New(), nil)
	runner := migration.NewRunner(store.Migrations(), nil)
	plugins := app.NewPluginService(reg, runner, app.PluginStores{
		States:   store.PluginStates(),
		Licenses: store.Licenses(),
		Flags:    store.FeatureFlags(),
		Purger:   store.Migrations(),
	}, nil)
	if len(manifests) == 0 {
		manifests = []domain.Manifest{blog.Manifest()}
	}
	require.NoError(t, plugins.Bootstrap(ctx, manifests...))

	signer := auth.NewSigner("test-secret")
	resolver := tenancy.NewResolver(store.Tenants(), store.Licenses(), baseDomain, nil)

	router := chi.NewMux()
	router.Use(adapter.DetectTenant(resolver, nil))
	api := adapter.NewAPI(router, "pluginiq", "test")
	adapter.Register(api, adapter.Services{
		Plugins:  plugins,
		Tenants:  app.NewTenantService(store.Tenants()),
		Licenses: app.NewLicenseService(reg, store.Tenants(), store.Licenses(), store.FeatureFlags(), nil),
		Signer:   signer,
		Posts:    blog.NewPosts(store.DB()),
	}, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, store: store, signer: signer}
}

func (e *testEnv) token(t *testing.T, role, tenantID string) string {
	t.Helper()
	token, err := e.signer.Issue(auth.Identity{UserID: "u-1", Email: "ops@example.test", Role: role, TenantID: tenantID})
	require.NoError(t, err)
	return token
}

type request struct {
	method string
	path   string
	host   string
	token  string
	cookie string
	body   string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(r.body, &out), "body: %s", r.body)
	return out
}

// do performs an HTTP request with context (avoids noctx linter).
func (e *testEnv) do(t *testing.T, r request) response {
	t.Helper()

	var reader io.Reader
	if r.body != "" {
		reader = strings.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(context.Background(), r.method, e.srv.URL+r.path, reader)
	require.NoError(t, err)

	if r.host != "" {
		req.Host = r.host
	}
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.cookie != "" {
		req.AddCookie(&http.Cookie{Name: adapter.SessionCookie, Value: r.cookie})
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: body}
}

func pluginBody(id string) string {
	return `{"pluginId":"` + id + `"}`
}

func TestListPlugins_MainDomain(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{method: http.MethodGet, path: "/api/plugins", host: baseDomain})
	require.Equal(t, http.StatusOK, resp.status)

	body := resp.json(t)
	plugins := body["plugins"].([]any)
	require.Len(t, plugins, 1)
	assert.Equal(t, blog.ID, plugins[0].(map[string]any)["id"])
	assert.Empty(t, body["states"])
	assert.NotContains(t, body, "tenantId")
}

func TestListPlugins_TenantStates(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{method: http.MethodGet, path: "/api/plugins", host: defaultHost})
	require.Equal(t, http.StatusOK, resp.status)

	body := resp.json(t)
	assert.Equal(t, domain.DefaultTenantID, body["tenantId"])
	states := body["states"].([]any)
	require.Len(t, states, 1)
	assert.Equal(t, "installed", states[0].(map[string]any)["status"])
}

func TestLifecycle_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{method: http.MethodPost, path: "/api/plugins/install", host: acmeHost, body: pluginBody(blog.ID)})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
	assert.Equal(t, "unauthorized", resp.json(t)["error"])

	resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/install", host: acmeHost, token: "forged.token", body: pluginBody(blog.ID)})
	assert.Equal(t, http.StatusUnauthorized, resp.status)
}

func TestLifecycle_RequiresTenant(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{
		method: http.MethodPost, path: "/api/plugins/install", host: "www." + baseDomain,
		token: env.token(t, auth.RoleAdmin, ""), body: pluginBody(blog.ID),
	})
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "tenant_not_found", resp.json(t)["error"])
}

func TestCrossTenantTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	acmeToken := env.token(t, "member", "t-acme")

	resp := env.do(t, request{method: http.MethodGet, path: "/api/plugins/licenses", host: defaultHost, token: acmeToken})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "tenant_mismatch", resp.json(t)["error"])

	resp = env.do(t, request{method: http.MethodGet, path: "/api/plugins/licenses", host: acmeHost, token: acmeToken})
	assert.Equal(t, http.StatusOK, resp.status)
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{
		method: http.MethodGet, path: "/api/plugins/licenses", host: acmeHost,
		cookie: env.token(t, "member", "t-acme"),
	})
	require.Equal(t, http.StatusOK, resp.status)

	body := resp.json(t)
	assert.Equal(t, "u-1", body["user"].(map[string]any)["id"])
	assert.Equal(t, "acme", body["tenant"].(map[string]any)["slug"])
	assert.Empty(t, body["licensedPluginIds"])
}

func TestValidationError(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{
		method: http.MethodPost, path: "/api/plugins/install", host: acmeHost,
		token: env.token(t, "member", ""), body: `{"pluginId":""}`,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.status)
	assert.Equal(t, "validation_failed", resp.json(t)["error"])
}

func TestInstall_UnknownPlugin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{
		method: http.MethodPost, path: "/api/plugins/install", host: acmeHost,
		token: env.token(t, "member", ""), body: pluginBody("acme/missing"),
	})
	assert.Equal(t, http.StatusNotFound, resp.status)
	assert.Equal(t, "plugin_not_found", resp.json(t)["error"])
}

func TestRequirePlugin(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "member", "")

	resp := env.do(t, request{method: http.MethodGet, path: "/api/blog/posts", host: acmeHost})
	assert.Equal(t, http.StatusForbidden, resp.status)
	body := resp.json(t)
	assert.Equal(t, "plugin_not_licensed", body["error"])
	assert.Equal(t, blog.ID, body["pluginId"])
	assert.NotEmpty(t, body["message"])

	// Installing grants the free tier; enabling creates the posts table.
	for _, action := range []string{"install", "enable"} {
		resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/" + action, host: acmeHost, token: token, body: pluginBody(blog.ID)})
		require.Equal(t, http.StatusOK, resp.status, "%s: %s", action, resp.body)
	}

	resp = env.do(t, request{method: http.MethodGet, path: "/api/blog/posts", host: acmeHost})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Empty(t, resp.json(t)["posts"], "seed posts belong to the default tenant")
}

func TestRequireFeature(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, auth.RoleAdmin, "")

	resp := env.do(t, request{method: http.MethodGet, path: "/api/blog/export", host: baseDomain})
	assert.Equal(t, http.StatusNotFound, resp.status)

	resp = env.do(t, request{method: http.MethodGet, path: "/api/blog/export", host: defaultHost})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "plugin_not_licensed", resp.json(t)["error"])

	for _, action := range []string{"install", "enable"} {
		resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/" + action, host: defaultHost, token: admin, body: pluginBody(blog.ID)})
		require.Equal(t, http.StatusOK, resp.status, "%s: %s", action, resp.body)
	}

	resp = env.do(t, request{method: http.MethodGet, path: "/api/blog/export", host: defaultHost})
	assert.Equal(t, http.StatusForbidden, resp.status)
	assert.Equal(t, "feature_not_enabled", resp.json(t)["error"])

	resp = env.do(t, request{
		method: http.MethodPut, path: "/api/admin/feature-flags", host: defaultHost, token: admin,
		body: `{"tenantId":"default","pluginId":"neomorfeo/blog","featureKey":"export","enabled":true}`,
	})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))

	resp = env.do(t, request{method: http.MethodGet, path: "/api/blog/export", host: defaultHost})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "text/csv", resp.header.Get("Content-Type"))
	assert.Contains(t, string(resp.body), "welcome,Welcome to your blog")
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, request{
		method: http.MethodPost, path: "/api/admin/tenants", host: baseDomain,
		token: env.token(t, "member", ""), body: `{"name":"Globex"}`,
	})
	assert.Equal(t, http.StatusForbidden, resp.status)
}

func TestAdmin_CreateTenantAndGrant(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, auth.RoleAdmin, "")

	resp := env.do(t, request{method: http.MethodPost, path: "/api/admin/tenants", host: baseDomain, token: admin, body: `{"name":"Acme"}`})
	require.Equal(t, http.StatusCreated, resp.status, string(resp.body))
	tenant := resp.json(t)
	assert.Equal(t, "acme-2", tenant["slug"])

	resp = env.do(t, request{
		method: http.MethodPost, path: "/api/admin/licenses", host: baseDomain, token: admin,
		body: `{"tenantId":"` + tenant["id"].(string) + `","pluginId":"neomorfeo/blog","plan":"trial"}`,
	})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))
	license := resp.json(t)
	assert.Equal(t, "active", license["status"])
	assert.NotEmpty(t, license["expiresAt"])
	assert.Contains(t, license["features"], "export")

	resp = env.do(t, request{method: http.MethodGet, path: "/api/blog/posts", host: "acme-2." + baseDomain})
	assert.NotEqual(t, http.StatusForbidden, resp.status, "licensed tenant passes requirePlugin")

	resp = env.do(t, request{
		method: http.MethodPost, path: "/api/admin/licenses", host: baseDomain, token: admin,
		body: `{"tenantId":"nobody","pluginId":"neomorfeo/blog","plan":"free"}`,
	})
	assert.Equal(t, http.StatusNotFound, resp.status)
}

func TestDisable_BlockedByDependents(t *testing.T) {
	dependent := domain.Manifest{
		ID:           "neomorfeo/blog-comments",
		Name:         "Comments",
		Version:      "1.0.0",
		Dependencies: []domain.Dependency{{PluginID: blog.ID, MinVersion: "1.0.0"}},
	}
	env := newTestEnv(t, blog.Manifest(), dependent)
	token := env.token(t, "member", "")

	resp := env.do(t, request{method: http.MethodPost, path: "/api/plugins/enable", host: defaultHost, token: token, body: pluginBody(blog.ID)})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))

	resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/disable", host: defaultHost, token: token, body: pluginBody(blog.ID)})
	assert.Equal(t, http.StatusForbidden, resp.status)
	body := resp.json(t)
	assert.Equal(t, "plugin_has_dependents", body["error"])
	assert.Contains(t, body["message"], "neomorfeo/blog-comments")
}

func TestEnable_MigrationFailure(t *testing.T) {
	broken := domain.Manifest{
		ID:      "acme/broken",
		Name:    "Broken",
		Version: "1.0.0",
		Migrations: []domain.Migration{{
			Version: "1.0.0",
			Up:      "CREATE TABLE broken (id INTEGER); INSERT INTO nowhere VALUES (1);",
		}},
	}
	env := newTestEnv(t, broken)
	token := env.token(t, "member", "")

	resp := env.do(t, request{method: http.MethodPost, path: "/api/plugins/enable", host: defaultHost, token: token, body: pluginBody("acme/broken")})
	assert.Equal(t, http.StatusInternalServerError, resp.status)
	body := resp.json(t)
	assert.Equal(t, "migration_failed", body["error"])
	assert.Contains(t, body["message"], "nowhere")

	resp = env.do(t, request{method: http.MethodGet, path: "/api/plugins", host: defaultHost})
	states := resp.json(t)["states"].([]any)
	require.Len(t, states, 1)
	assert.Equal(t, "disabled", states[0].(map[string]any)["status"])
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "member", "")

	resp := env.do(t, request{
		method: http.MethodPatch, path: "/api/plugins/config", host: defaultHost, token: token,
		body: `{"pluginId":"neomorfeo/blog","config":{"postsPerPage":5}}`,
	})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))
	cfg := resp.json(t)["config"].(map[string]any)
	assert.Equal(t, 5.0, cfg["postsPerPage"])
}

// TestBlogEndToEnd walks the blog through its whole life on the default tenant.
func TestBlogEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.RoleAdmin, domain.DefaultTenantID)

	for _, action := range []string{"install", "enable"} {
		resp := env.do(t, request{method: http.MethodPost, path: "/api/plugins/" + action, host: defaultHost, token: token, body: pluginBody(blog.ID)})
		require.Equal(t, http.StatusOK, resp.status, "%s: %s", action, resp.body)
	}

	resp := env.do(t, request{method: http.MethodGet, path: "/api/blog/posts", host: defaultHost})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Len(t, resp.json(t)["posts"], 2)

	resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/disable", host: defaultHost, token: token, body: pluginBody(blog.ID)})
	require.Equal(t, http.StatusOK, resp.status)
	assert.Equal(t, "disabled", resp.json(t)["status"])

	resp = env.do(t, request{method: http.MethodPost, path: "/api/plugins/uninstall", host: defaultHost, token: token, body: pluginBody(blog.ID)})
	require.Equal(t, http.StatusOK, resp.status, string(resp.body))
	assert.Equal(t, true, resp.json(t)["uninstalled"])

	var tables int
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'blog_posts'`).Scan(&tables))
	assert.Equal(t, 0, tables)

	resp = env.do(t, request{method: http.MethodGet, path: "/api/plugins", host: defaultHost})
	assert.Empty(t, resp.json(t)["plugins"])
}
