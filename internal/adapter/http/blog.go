package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/pluginiq/internal/plugins/blog"
	"github.com/neomorfeo/pluginiq/internal/tenancy"
)

// PostLister reads a tenant's blog posts.
type PostLister interface {
	List(ctx context.Context, tenantID string) ([]blog.Post, error)
}

type PostResponse struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Title       string  `json:"title"`
	Body        string  `json:"body"`
	PublishedAt *string `json:"publishedAt,omitempty"`
}

type ListPostsOutput struct {
	Body struct {
		Posts []PostResponse `json:"posts"`
	}
}

type ExportPostsOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func registerBlog(api huma.API, posts PostLister, flags FeatureChecker, logger *slog.Logger) {
	tenant := requireTenant(api)

	huma.Register(api, huma.Operation{
		OperationID: "list-blog-posts",
		Method:      http.MethodGet,
		Path:        "/api/blog/posts",
		Summary:     "List the tenant's blog posts",
		Tags:        []string{"Blog"},
		Middlewares: huma.Middlewares{tenant, requirePlugin(api, blog.ID)},
	}, func(ctx context.Context, _ *struct{}) (*ListPostsOutput, error) {
		list, err := posts.List(ctx, tenancy.FromContext(ctx).TenantID())
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &ListPostsOutput{}
		out.Body.Posts = make([]PostResponse, len(list))
		for i, p := range list {
			out.Body.Posts[i] = PostResponse{
				ID:          p.ID,
				Slug:        p.Slug,
				Title:       p.Title,
				Body:        p.Body,
				PublishedAt: formatTime(p.PublishedAt),
			}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-blog-posts",
		Method:      http.MethodGet,
		Path:        "/api/blog/export",
		Summary:     "Export the tenant's blog posts as CSV",
		Tags:        []string{"Blog"},
		Middlewares: huma.Middlewares{requireFeature(api, flags, blog.ID, blog.FeatureExport, logger)},
	}, func(ctx context.Context, _ *struct{}) (*ExportPostsOutput, error) {
		list, err := posts.List(ctx, tenancy.FromContext(ctx).TenantID())
		if err != nil {
			return nil, toHumaError(err)
		}

		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		_ = w.Write([]string{"id", "slug", "title", "published_at"})
		for _, p := range list {
			published := ""
			if p.PublishedAt != nil {
				published = p.PublishedAt.UTC().Format(timeFormat)
			}
			_ = w.Write([]string{p.ID, p.Slug, p.Title, published})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, toHumaError(err)
		}

		return &ExportPostsOutput{
			ContentType:        "text/csv",
			ContentDisposition: `attachment; filename="posts.csv"`,
			Body:               buf.Bytes(),
		}, nil
	})
}
