package http

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// ErrorBody is the JSON error shape of every failed request.
type ErrorBody struct {
	Status   int      `json:"-"`
	Code     string   `json:"error" doc:"Machine-readable error code"`
	Message  string   `json:"message,omitempty" doc:"Human-readable description"`
	PluginID string   `json:"pluginId,omitempty" doc:"Plugin the error refers to"`
	Details  []string `json:"details,omitempty" doc:"Field-level validation failures"`
}

func (e *ErrorBody) Error() string { return e.Message }

// GetStatus implements huma.StatusError.
func (e *ErrorBody) GetStatus() int { return e.Status }

var statusCodes = map[int]string{
	http.StatusBadRequest:          "bad_request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusNotFound:            "not_found",
	http.StatusConflict:            "conflict",
	http.StatusUnprocessableEntity: "validation_failed",
	http.StatusInternalServerError: "internal_error",
}

func codeFor(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return "error"
}

// newError replaces huma's default problem-details model so that huma's own
// validation failures share the ErrorBody shape.
func newError(status int, msg string, errs ...error) huma.StatusError {
	body := &ErrorBody{Status: status, Code: codeFor(status), Message: msg}
	for _, err := range errs {
		if err != nil {
			body.Details = append(body.Details, err.Error())
		}
	}
	return body
}

func errorBody(status int, code, msg string) *ErrorBody {
	return &ErrorBody{Status: status, Code: code, Message: msg}
}

// toHumaError translates domain errors to HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return errorBody(http.StatusNotFound, "tenant_not_found", "tenant not found")
	case errors.Is(err, domain.ErrPluginNotFound):
		return errorBody(http.StatusNotFound, "plugin_not_found", "plugin not found")
	case errors.Is(err, domain.ErrPluginNotInstalled):
		return errorBody(http.StatusNotFound, "plugin_not_installed", "plugin not installed")
	case errors.Is(err, domain.ErrLicenseNotFound):
		return errorBody(http.StatusNotFound, "license_not_found", "license not found")
	case errors.Is(err, domain.ErrTierNotOffered):
		return errorBody(http.StatusBadRequest, "tier_not_offered", err.Error())
	case errors.Is(err, domain.ErrCustomDomainTaken):
		return errorBody(http.StatusConflict, "custom_domain_taken", "custom domain is already in use")
	}

	var (
		slugErr       *domain.SlugConflictError
		validationErr *domain.ValidationError
		conflictErr   *domain.ConflictError
		dependencyErr *domain.DependencyError
		dependentsErr *domain.DependentsError
		transitionErr *domain.TransitionError
		hookErr       *domain.HookError
		migrationErr  *domain.MigrationError
	)
	switch {
	case errors.As(err, &slugErr):
		return errorBody(http.StatusConflict, "slug_conflict", slugErr.Error())
	case errors.As(err, &validationErr):
		return errorBody(http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.As(err, &conflictErr):
		return &ErrorBody{Status: http.StatusBadRequest, Code: "plugin_conflict", Message: conflictErr.Error(), PluginID: conflictErr.PluginID}
	case errors.As(err, &dependencyErr):
		return &ErrorBody{Status: http.StatusBadRequest, Code: "dependency_unsatisfied", Message: dependencyErr.Error(), PluginID: dependencyErr.PluginID}
	case errors.As(err, &dependentsErr):
		return &ErrorBody{Status: http.StatusForbidden, Code: "plugin_has_dependents", Message: dependentsErr.Error(), PluginID: dependentsErr.PluginID}
	case errors.As(err, &transitionErr):
		return errorBody(http.StatusUnprocessableEntity, "invalid_transition", transitionErr.Error())
	case errors.As(err, &hookErr):
		return &ErrorBody{Status: http.StatusInternalServerError, Code: "hook_failed", Message: hookErr.Error(), PluginID: hookErr.PluginID}
	case errors.As(err, &migrationErr):
		return &ErrorBody{Status: http.StatusInternalServerError, Code: "migration_failed", Message: migrationErr.Error(), PluginID: migrationErr.PluginID}
	}

	return errorBody(http.StatusInternalServerError, "internal_error", err.Error())
}

// writeError renders body from inside a huma middleware.
func writeError(api huma.API, ctx huma.Context, body *ErrorBody) {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.SetStatus(body.Status)
	_ = api.Marshal(ctx.BodyWriter(), "application/json", body)
}
