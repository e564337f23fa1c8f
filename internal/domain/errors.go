package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrPluginNotFound     = errors.New("plugin not found")
	ErrPluginNotInstalled = errors.New("plugin not installed")
	ErrLicenseNotFound    = errors.New("license not found")
	ErrTierNotOffered     = errors.New("plan not offered by plugin")
	ErrCustomDomainTaken  = errors.New("custom domain is already in use")
)

// SlugConflictError is returned when a tenant slug is already in use.
type SlugConflictError struct {
	Slug string
}

func (e *SlugConflictError) Error() string {
	return fmt.Sprintf("slug %q is already in use", e.Slug)
}

// TransitionError is returned when a plugin status transition is not allowed.
type TransitionError struct {
	Event   PluginEvent
	Current PluginStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// ValidationError reports a malformed manifest.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid manifest: %s %s", e.Field, e.Reason)
}

// ConflictError is returned when two plugins declare each other incompatible.
type ConflictError struct {
	PluginID string
	With     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("plugin %q conflicts with registered plugin %q", e.PluginID, e.With)
}

// DependencyError is returned when a declared dependency is missing or out of range.
type DependencyError struct {
	PluginID   string
	Dependency Dependency
	Found      string // registered version, empty when missing
}

func (e *DependencyError) Error() string {
	if e.Found == "" {
		return fmt.Sprintf("plugin %q requires %q which is not registered", e.PluginID, e.Dependency.PluginID)
	}
	bounds := make([]string, 0, 2)
	if e.Dependency.MinVersion != "" {
		bounds = append(bounds, ">= "+e.Dependency.MinVersion)
	}
	if e.Dependency.MaxVersion != "" {
		bounds = append(bounds, "<= "+e.Dependency.MaxVersion)
	}
	return fmt.Sprintf("plugin %q requires %q %s, found %s",
		e.PluginID, e.Dependency.PluginID, strings.Join(bounds, " "), e.Found)
}

// DependentsError is returned when disabling a plugin that others depend on.
type DependentsError struct {
	PluginID   string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("plugin %q is required by %s", e.PluginID, strings.Join(e.Dependents, ", "))
}

// HookError wraps a failure raised by a lifecycle hook.
type HookError struct {
	PluginID string
	Hook     string
	Err      error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %q %s hook failed: %v", e.PluginID, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// MigrationError wraps a failing statement of a plugin migration.
type MigrationError struct {
	PluginID  string
	Version   string
	Direction string
	Statement int
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s %s@%s failed at statement %d: %v",
		e.Direction, e.PluginID, e.Version, e.Statement+1, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
