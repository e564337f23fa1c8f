package domain_test

import (
	"errors"
	"testing"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

func TestSlugConflictError_Error(t *testing.T) {
	err := &domain.SlugConflictError{Slug: "acme"}
	want := `slug "acme" is already in use`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Event:   domain.PluginEventEnable,
		Current: domain.PluginUninstalling,
	}
	want := `event "enable" is not valid from state "uninstalling"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDependentsError_NamesDependents(t *testing.T) {
	err := &domain.DependentsError{PluginID: "acme/core", Dependents: []string{"acme/a", "acme/b"}}
	want := `plugin "acme/core" is required by acme/a, acme/b`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDependencyError_Error(t *testing.T) {
	missing := &domain.DependencyError{PluginID: "acme/a", Dependency: domain.Dependency{PluginID: "acme/core"}}
	if got, want := missing.Error(), `plugin "acme/a" requires "acme/core" which is not registered`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	old := &domain.DependencyError{
		PluginID:   "acme/a",
		Dependency: domain.Dependency{PluginID: "acme/core", MinVersion: "1.3.0"},
		Found:      "1.2.0",
	}
	if got, want := old.Error(), `plugin "acme/a" requires "acme/core" >= 1.3.0, found 1.2.0`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestHookError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &domain.HookError{PluginID: "acme/a", Hook: "onEnable", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("HookError should unwrap to its cause")
	}
}

func TestMigrationError_Unwrap(t *testing.T) {
	cause := errors.New("no such table")
	err := &domain.MigrationError{PluginID: "acme/a", Version: "1.0.0", Direction: "up", Statement: 1, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("MigrationError should unwrap to its cause")
	}
	want := `migration up acme/a@1.0.0 failed at statement 2: no such table`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
