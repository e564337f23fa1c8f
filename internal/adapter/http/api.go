package http

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
)

// NewAPI mounts a huma API on router. Errors of every operation, including
// huma's request validation failures, are rendered as ErrorBody.
func NewAPI(router chi.Router, title, version string) huma.API {
	huma.NewError = newError
	return humachi.New(router, huma.DefaultConfig(title, version))
}
