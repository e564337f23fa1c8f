package app

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/pluginiq/internal/domain"
	"github.com/neomorfeo/pluginiq/internal/registry"
)

// ForwardEvents publishes every registry event through pub. Publish failures
// are logged and never fail the lifecycle operation that raised the event.
func ForwardEvents(reg *registry.Registry, pub domain.EventPublisher, logger *slog.Logger) (unsubscribe func()) {
	if logger == nil {
		logger = slog.Default()
	}
	return reg.OnAll(func(ctx context.Context, e domain.Event) {
		if err := pub.Publish(ctx, e); err != nil {
			logger.ErrorContext(ctx, "publishing plugin event",
				"event", string(e.Kind),
				"plugin_id", e.PluginID,
				"tenant_id", e.TenantID,
				"error", err,
			)
		}
	})
}
