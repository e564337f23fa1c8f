package blog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Post is a blog entry owned by one tenant.
type Post struct {
	ID          string
	TenantID    string
	Slug        string
	Title       string
	Body        string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

const timeFormat = "2006-01-02T15:04:05Z"

// Posts reads blog_posts rows.
type Posts struct {
	db *sql.DB
}

// NewPosts creates a post store on db.
func NewPosts(db *sql.DB) *Posts {
	return &Posts{db: db}
}

// List returns the tenant's posts, newest first.
func (p *Posts) List(ctx context.Context, tenantID string) ([]Post, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, tenant_id, slug, title, body, published_at, created_at
		 FROM blog_posts WHERE tenant_id = ?
		 ORDER BY created_at DESC, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing blog posts: %w", err)
	}
	defer rows.Close()

	var out []Post
	for rows.Next() {
		var post Post
		var published sql.NullString
		var created string
		if err := rows.Scan(&post.ID, &post.TenantID, &post.Slug, &post.Title, &post.Body, &published, &created); err != nil {
			return nil, fmt.Errorf("scanning blog post: %w", err)
		}
		if published.Valid {
			t, _ := time.Parse(timeFormat, published.String)
			post.PublishedAt = &t
		}
		post.CreatedAt, _ = time.Parse(timeFormat, created)
		out = append(out, post)
	}
	return out, rows.Err()
}
