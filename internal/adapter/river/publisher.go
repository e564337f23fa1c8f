// Package river moves plugin lifecycle events and periodic license upkeep
// onto a River job queue stored in the platform's SQLite database.
package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

var _ domain.EventPublisher = (*Publisher)(nil)

// PluginEventArgs is the queued form of a registry event. It carries a full
// snapshot so the worker never reads the database.
type PluginEventArgs struct {
	EventKind string    `json:"kind"`
	TenantID  string    `json:"tenant_id"`
	PluginID  string    `json:"plugin_id"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Kind returns the job type identifier used by River's job routing.
func (PluginEventArgs) Kind() string { return "plugin.event" }

// Event converts the job arguments back to a domain.Event.
func (a PluginEventArgs) Event() domain.Event {
	return domain.Event{
		Kind:     domain.EventKind(a.EventKind),
		TenantID: a.TenantID,
		PluginID: a.PluginID,
		Status:   domain.PluginStatus(a.Status),
		Message:  a.Message,
		At:       a.At,
	}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	_, err := p.client.Insert(ctx, PluginEventArgs{
		EventKind: string(event.Kind),
		TenantID:  event.TenantID,
		PluginID:  event.PluginID,
		Status:    string(event.Status),
		Message:   event.Message,
		At:        event.At,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing plugin event job: %w", err)
	}
	return nil
}
