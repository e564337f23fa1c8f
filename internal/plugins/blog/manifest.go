// Package blog is the built-in blog plugin: a manifest with its schema
// migrations and the tenant-scoped post store its endpoints read from.
package blog

import (
	"embed"

	"github.com/neomorfeo/pluginiq/internal/domain"
)

// ID is the plugin id of the blog.
const ID = "neomorfeo/blog"

// FeatureExport gates the post export endpoint.
const FeatureExport = "export"

//go:embed sql/*.sql
var scripts embed.FS

func script(name string) string {
	b, err := scripts.ReadFile("sql/" + name)
	if err != nil {
		panic("blog: missing embedded script " + name)
	}
	return string(b)
}

func order(n int) *int { return &n }

// Manifest returns the blog plugin descriptor.
func Manifest() domain.Manifest {
	return domain.Manifest{
		ID:          ID,
		Name:        "Blog",
		Version:     "1.1.0",
		Description: "Tenant-scoped posts with an optional export feature.",
		Priority:    10,
		Routes: []domain.Route{
			{Path: "/blog", Title: "Posts", Component: domain.ComponentRef{Kind: domain.ComponentPage, Handle: "blog.posts"}, Permission: "blog.read"},
			{Path: "/blog/new", Title: "New post", Component: domain.ComponentRef{Kind: domain.ComponentForm, Handle: "blog.editor"}, Permission: "blog.write"},
		},
		Navigation: []domain.NavItem{
			{ID: "blog", Label: "Blog", Path: "/blog", Icon: "newspaper", Order: order(20)},
			{ID: "blog-new", Label: "New post", Path: "/blog/new", Parent: "blog"},
		},
		Slots: []domain.SlotContribution{
			{Slot: "dashboard.widgets", Component: domain.ComponentRef{Kind: domain.ComponentWidget, Handle: "blog.recent-posts"}, Order: 10},
		},
		Settings: &domain.SettingsPanel{
			Title:     "Blog",
			Component: domain.ComponentRef{Kind: domain.ComponentPanel, Handle: "blog.settings"},
		},
		Permissions: []domain.Permission{
			{Key: "blog.read", Description: "Read posts"},
			{Key: "blog.write", Description: "Create and edit posts"},
		},
		Migrations: []domain.Migration{
			{Version: "1.0.0", Description: "posts table and seed content", Up: script("1.0.0.up.sql"), Down: script("1.0.0.down.sql")},
			{Version: "1.1.0", Description: "published index", Up: script("1.1.0.up.sql"), Down: script("1.1.0.down.sql")},
		},
		Endpoints: []domain.Endpoint{
			{Method: "GET", Path: "/api/blog/posts", Summary: "List posts"},
			{Method: "GET", Path: "/api/blog/export", Summary: "Export posts as CSV"},
		},
		Tiers: []domain.Tier{
			{Plan: domain.PlanFree, Features: []string{"posts"}},
			{Plan: domain.PlanTrial, Features: []string{"posts", FeatureExport}},
			{Plan: domain.PlanMonthly, Features: []string{"posts", FeatureExport}},
			{Plan: domain.PlanYearly, Features: []string{"posts", FeatureExport}},
			{Plan: domain.PlanLifetime, Features: []string{"posts", FeatureExport}},
		},
		TenantTables: []string{"blog_posts"},
	}
}
