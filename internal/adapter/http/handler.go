package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/pluginiq/internal/app"
	"github.com/neomorfeo/pluginiq/internal/auth"
	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

const timeFormat = "2006-01-02T15:04:05Z"

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeFormat)
	return &s
}

// Services are the application services exposed over HTTP.
type Services struct {
	Plugins  *app.PluginService
	Tenants  *app.TenantService
	Licenses *app.LicenseService
	Signer   *auth.Signer
	// Posts backs the blog endpoints; they are not mounted when nil.
	Posts PostLister
}

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID           string `json:"id" doc:"Unique identifier"`
	Name         string `json:"name" doc:"Display name"`
	Slug         string `json:"slug" doc:"Subdomain label"`
	CustomDomain string `json:"customDomain,omitempty" doc:"Custom domain"`
	Status       string `json:"status" doc:"Lifecycle state"`
	Plan         string `json:"plan" doc:"Subscription plan"`
	CreatedAt    string `json:"createdAt" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt    string `json:"updatedAt" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		CustomDomain: t.CustomDomain,
		Status:       string(t.Status),
		Plan:         t.Plan,
		CreatedAt:    t.CreatedAt.Format(timeFormat),
		UpdatedAt:    t.UpdatedAt.Format(timeFormat),
	}
}

// PluginStateResponse is the API representation of a tenant's plugin state.
type PluginStateResponse struct {
	TenantID    string         `json:"tenantId"`
	PluginID    string         `json:"pluginId"`
	Status      string         `json:"status" enum:"installed,enabled,disabled,error,installing,uninstalling"`
	Version     string         `json:"version"`
	Config      map[string]any `json:"config"`
	Error       string         `json:"error,omitempty"`
	InstalledAt string         `json:"installedAt"`
	UpdatedAt   string         `json:"updatedAt"`
	EnabledAt   *string        `json:"enabledAt,omitempty"`
	DisabledAt  *string        `json:"disabledAt,omitempty"`
}

func toStateResponse(st domain.PluginState) PluginStateResponse {
	cfg := st.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return PluginStateResponse{
		TenantID:    st.TenantID,
		PluginID:    st.PluginID,
		Status:      string(st.Status),
		Version:     st.Version,
		Config:      cfg,
		Error:       st.Error,
		InstalledAt: st.InstalledAt.UTC().Format(timeFormat),
		UpdatedAt:   st.UpdatedAt.UTC().Format(timeFormat),
		EnabledAt:   formatTime(st.EnabledAt),
		DisabledAt:  formatTime(st.DisabledAt),
	}
}

// LicenseResponse is the API representation of a plugin license.
type LicenseResponse struct {
	ID        string   `json:"id"`
	TenantID  string   `json:"tenantId"`
	PluginID  string   `json:"pluginId"`
	Plan      string   `json:"plan"`
	Status    string   `json:"status"`
	Features  []string `json:"features"`
	ExpiresAt *string  `json:"expiresAt,omitempty"`
}

func toLicenseResponse(l domain.License) LicenseResponse {
	features := l.Features
	if features == nil {
		features = []string{}
	}
	return LicenseResponse{
		ID:        l.ID,
		TenantID:  l.TenantID,
		PluginID:  l.PluginID,
		Plan:      string(l.Plan),
		Status:    string(l.Status),
		Features:  features,
		ExpiresAt: formatTime(l.ExpiresAt),
	}
}

// --- List Plugins ---

type ListPluginsOutput struct {
	Body struct {
		TenantID string                `json:"tenantId,omitempty" doc:"Resolved tenant, empty on the main domain"`
		Plugins  []domain.Manifest     `json:"plugins" doc:"Registered plugins in load order"`
		States   []PluginStateResponse `json:"states" doc:"Plugin states of the resolved tenant"`
	}
}

// --- Plugin lifecycle ---

type PluginActionInput struct {
	Body struct {
		PluginID string `json:"pluginId" minLength:"1" doc:"Plugin id (vendor/name)"`
	}
}

type PluginStateOutput struct {
	Body PluginStateResponse
}

type UninstallOutput struct {
	Body struct {
		PluginID    string `json:"pluginId"`
		Uninstalled bool   `json:"uninstalled"`
	}
}

type UpdateConfigInput struct {
	Body struct {
		PluginID string         `json:"pluginId" minLength:"1" doc:"Plugin id (vendor/name)"`
		Config   map[string]any `json:"config" doc:"Keys to merge into the plugin configuration"`
	}
}

// --- Licenses ---

type UserResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenantId,omitempty"`
}

type LicensesOutput struct {
	Body struct {
		User              UserResponse      `json:"user"`
		Tenant            *TenantResponse   `json:"tenant,omitempty"`
		Licenses          []LicenseResponse `json:"licenses"`
		LicensedPluginIDs []string          `json:"licensedPluginIds"`
	}
}

// --- Admin ---

type GrantLicenseInput struct {
	Body struct {
		TenantID  string     `json:"tenantId" minLength:"1"`
		PluginID  string     `json:"pluginId" minLength:"1"`
		Plan      string     `json:"plan" enum:"free,trial,monthly,yearly,lifetime"`
		ExpiresAt *time.Time `json:"expiresAt,omitempty" doc:"Expiry; trials default to the tier's trial length"`
	}
}

type LicenseOutput struct {
	Body LicenseResponse
}

type FeatureFlagInput struct {
	Body struct {
		TenantID   string `json:"tenantId" minLength:"1"`
		PluginID   string `json:"pluginId" minLength:"1"`
		FeatureKey string `json:"featureKey" minLength:"1"`
		Enabled    bool   `json:"enabled"`
	}
}

type FeatureFlagOutput struct {
	Body struct {
		TenantID   string `json:"tenantId"`
		PluginID   string `json:"pluginId"`
		FeatureKey string `json:"featureKey"`
		Enabled    bool   `json:"enabled"`
	}
}

type CreateTenantInput struct {
	Body struct {
		Name         string `json:"name" minLength:"1" maxLength:"255" doc:"Display name"`
		Plan         string `json:"plan,omitempty" default:"free" doc:"Subscription plan"`
		CustomDomain string `json:"customDomain,omitempty" maxLength:"253" doc:"Optional custom domain"`
	}
}

type CreateTenantOutput struct {
	Body TenantResponse
}

// Register adds all plugin platform routes to the Huma API.
func Register(api huma.API, svc Services, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	authn := requireAuth(api, svc.Signer, logger)
	tenant := requireTenant(api)
	admin := requireAdmin(api)

	huma.Register(api, huma.Operation{
		OperationID: "list-plugins",
		Method:      http.MethodGet,
		Path:        "/api/plugins",
		Summary:     "List registered plugins and the tenant's plugin states",
		Tags:        []string{"Plugins"},
	}, func(ctx context.Context, _ *struct{}) (*ListPluginsOutput, error) {
		tenantID := tenancy.FromContext(ctx).TenantID()
		catalog, err := svc.Plugins.List(ctx, tenantID)
		if err != nil {
			return nil, toHumaError(err)
		}

		out := &ListPluginsOutput{}
		out.Body.TenantID = tenantID
		out.Body.Plugins = catalog.Plugins
		out.Body.States = make([]PluginStateResponse, len(catalog.States))
		for i, st := range catalog.States {
			out.Body.States[i] = toStateResponse(st)
		}
		return out, nil
	})

	lifecycle := []struct {
		id, path, summary string
		run               func(ctx context.Context, tenantID, pluginID string) (domain.PluginState, error)
	}{
		{"install-plugin", "/api/plugins/install", "Install a plugin for the tenant", svc.Plugins.Install},
		{"enable-plugin", "/api/plugins/enable", "Enable a plugin and apply its migrations", svc.Plugins.Enable},
		{"disable-plugin", "/api/plugins/disable", "Disable a plugin", svc.Plugins.Disable},
	}
	for _, op := range lifecycle {
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Tags:        []string{"Plugins"},
			Middlewares: huma.Middlewares{authn, tenant},
		}, func(ctx context.Context, input *PluginActionInput) (*PluginStateOutput, error) {
			st, err := op.run(ctx, tenancy.FromContext(ctx).TenantID(), input.Body.PluginID)
			if err != nil {
				return nil, toHumaError(err)
			}
			return &PluginStateOutput{Body: toStateResponse(st)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "uninstall-plugin",
		Method:      http.MethodPost,
		Path:        "/api/plugins/uninstall",
		Summary:     "Uninstall a plugin and delete the tenant's plugin data",
		Tags:        []string{"Plugins"},
		Middlewares: huma.Middlewares{authn, tenant},
	}, func(ctx context.Context, input *PluginActionInput) (*UninstallOutput, error) {
		if err := svc.Plugins.Uninstall(ctx, tenancy.FromContext(ctx).TenantID(), input.Body.PluginID); err != nil {
			return nil, toHumaError(err)
		}
		out := &UninstallOutput{}
		out.Body.PluginID = input.Body.PluginID
		out.Body.Uninstalled = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-plugin-config",
		Method:      http.MethodPatch,
		Path:        "/api/plugins/config",
		Summary:     "Merge keys into a plugin's configuration",
		Tags:        []string{"Plugins"},
		Middlewares: huma.Middlewares{authn, tenant},
	}, func(ctx context.Context, input *UpdateConfigInput) (*PluginStateOutput, error) {
		st, err := svc.Plugins.UpdateConfig(ctx, tenancy.FromContext(ctx).TenantID(), input.Body.PluginID, input.Body.Config)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &PluginStateOutput{Body: toStateResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-licenses",
		Method:      http.MethodGet,
		Path:        "/api/plugins/licenses",
		Summary:     "Current identity, tenant and active licenses",
		Tags:        []string{"Licenses"},
		Middlewares: huma.Middlewares{authn},
	}, func(ctx context.Context, _ *struct{}) (*LicensesOutput, error) {
		id, _ := IdentityFromContext(ctx)
		res := tenancy.FromContext(ctx)

		out := &LicensesOutput{}
		out.Body.User = UserResponse{ID: id.UserID, Email: id.Email, Role: id.Role, TenantID: id.TenantID}
		out.Body.Licenses = make([]LicenseResponse, len(res.Licenses))
		for i, l := range res.Licenses {
			out.Body.Licenses[i] = toLicenseResponse(l)
		}
		out.Body.LicensedPluginIDs = res.LicensedPluginIDs()
		if res.Found() {
			t := toTenantResponse(*res.Tenant)
			out.Body.Tenant = &t
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-license",
		Method:      http.MethodPost,
		Path:        "/api/admin/licenses",
		Summary:     "Grant a plugin license to a tenant",
		Tags:        []string{"Admin"},
		Middlewares: huma.Middlewares{authn, admin},
	}, func(ctx context.Context, input *GrantLicenseInput) (*LicenseOutput, error) {
		l, err := svc.Licenses.Grant(ctx, input.Body.TenantID, input.Body.PluginID,
			domain.LicensePlan(input.Body.Plan), input.Body.ExpiresAt)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LicenseOutput{Body: toLicenseResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-feature-flag",
		Method:      http.MethodPut,
		Path:        "/api/admin/feature-flags",
		Summary:     "Switch a plugin feature on or off for a tenant",
		Tags:        []string{"Admin"},
		Middlewares: huma.Middlewares{authn, admin},
	}, func(ctx context.Context, input *FeatureFlagInput) (*FeatureFlagOutput, error) {
		flag := domain.FeatureFlag{
			TenantID:   input.Body.TenantID,
			PluginID:   input.Body.PluginID,
			FeatureKey: input.Body.FeatureKey,
			Enabled:    input.Body.Enabled,
		}
		if err := svc.Licenses.SetFeatureFlag(ctx, flag); err != nil {
			return nil, toHumaError(err)
		}
		out := &FeatureFlagOutput{}
		out.Body.TenantID = flag.TenantID
		out.Body.PluginID = flag.PluginID
		out.Body.FeatureKey = flag.FeatureKey
		out.Body.Enabled = flag.Enabled
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/api/admin/tenants",
		Summary:       "Create a new tenant",
		Tags:          []string{"Admin"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{authn, admin},
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		t, err := svc.Tenants.Create(ctx, input.Body.Name, input.Body.Plan, input.Body.CustomDomain)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateTenantOutput{Body: toTenantResponse(t)}, nil
	})

	if svc.Posts != nil {
		registerBlog(api, svc.Posts, svc.Licenses, logger)
	}
}
