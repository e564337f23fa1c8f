package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/pluginiq/internal/auth"
	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

// SessionCookie is the cookie that may carry the token instead of the
// Authorization header.
const SessionCookie = "session"

// DetectTenant resolves the tenant addressed by the request host and stores
// the result in the request context. A host that names no tenant is not an
// error; handlers decide whether they need one.
func DetectTenant(resolver *tenancy.Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := resolver.Detect(r.Context(), r.Host)
			if err != nil {
				logger.ErrorContext(r.Context(), "tenant detection failed", "host", r.Host, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(errorBody(http.StatusInternalServerError, "internal_error", err.Error()))
				return
			}
			next.ServeHTTP(w, r.WithContext(tenancy.WithResolution(r.Context(), res)))
		})
	}
}

type identityKey struct{}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

func bearerToken(ctx huma.Context) string {
	if h := ctx.Header("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	cookies, err := http.ParseCookie(ctx.Header("Cookie"))
	if err != nil {
		return ""
	}
	for _, c := range cookies {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	return ""
}

// requireAuth verifies the request token. A token bound to a tenant is only
// accepted on that tenant's hosts.
func requireAuth(api huma.API, signer *auth.Signer, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		token := bearerToken(ctx)
		if token == "" {
			writeError(api, ctx, errorBody(http.StatusUnauthorized, "unauthorized", "authentication required"))
			return
		}

		id, err := signer.Verify(token)
		if err != nil {
			writeError(api, ctx, errorBody(http.StatusUnauthorized, "unauthorized", "invalid or expired token"))
			return
		}

		res := tenancy.FromContext(ctx.Context())
		if id.TenantID != "" && res.Found() && id.TenantID != res.TenantID() {
			logger.WarnContext(ctx.Context(), "cross-tenant token rejected",
				"user_id", id.UserID,
				"token_tenant_id", id.TenantID,
				"request_tenant_id", res.TenantID(),
				"host", ctx.Host(),
			)
			writeError(api, ctx, errorBody(http.StatusForbidden, "tenant_mismatch", "token was issued for a different tenant"))
			return
		}

		next(huma.WithValue(ctx, identityKey{}, id))
	}
}

func requireAdmin(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id, ok := IdentityFromContext(ctx.Context())
		if !ok || !id.IsAdmin() {
			writeError(api, ctx, errorBody(http.StatusForbidden, "forbidden", "admin role required"))
			return
		}
		next(ctx)
	}
}

func requireTenant(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !tenancy.FromContext(ctx.Context()).Found() {
			writeError(api, ctx, errorBody(http.StatusNotFound, "tenant_not_found", "tenant not found"))
			return
		}
		next(ctx)
	}
}

func requirePlugin(api huma.API, pluginID string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !tenancy.FromContext(ctx.Context()).LicensedPlugin(pluginID) {
			writeError(api, ctx, &ErrorBody{
				Status:   http.StatusForbidden,
				Code:     "plugin_not_licensed",
				Message:  "this tenant is not licensed to use " + pluginID,
				PluginID: pluginID,
			})
			return
		}
		next(ctx)
	}
}

// FeatureChecker reports whether a tenant has switched a plugin feature on.
type FeatureChecker interface {
	FeatureEnabled(ctx context.Context, tenantID, pluginID, featureKey string) (bool, error)
}

func requireFeature(api huma.API, flags FeatureChecker, pluginID, featureKey string, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		res := tenancy.FromContext(ctx.Context())
		if !res.Found() {
			writeError(api, ctx, errorBody(http.StatusNotFound, "tenant_not_found", "tenant not found"))
			return
		}
		if !res.LicensedPlugin(pluginID) {
			writeError(api, ctx, &ErrorBody{
				Status:   http.StatusForbidden,
				Code:     "plugin_not_licensed",
				Message:  "this tenant is not licensed to use " + pluginID,
				PluginID: pluginID,
			})
			return
		}

		enabled, err := flags.FeatureEnabled(ctx.Context(), res.TenantID(), pluginID, featureKey)
		if err != nil {
			// Entitlement checks fail closed.
			logger.ErrorContext(ctx.Context(), "feature flag lookup failed",
				"tenant_id", res.TenantID(),
				"plugin_id", pluginID,
				"feature", featureKey,
				"error", err,
			)
		}
		if !enabled {
			writeError(api, ctx, &ErrorBody{
				Status:   http.StatusForbidden,
				Code:     "feature_not_enabled",
				Message:  "feature " + featureKey + " is not enabled",
				PluginID: pluginID,
			})
			return
		}
		next(ctx)
	}
}
