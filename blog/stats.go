package blog

import (
	"context"

	"github.com/jonkersai/website/recordstore"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const recentPostsLimit = 5

// Stats gathers the dashboard counts concurrently.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)

	count := func(dst *int, table string, f recordstore.Filter) {
		g.Go(func() error {
			n, err := s.store.Count(gctx, table, f)
			if err != nil {
				return errors.Wrapf(err, "[Stats] count %s", table)
			}
			*dst = n
			return nil
		})
	}
	byStatus := func(status Status) recordstore.Filter {
		return recordstore.Where(recordstore.Eq("status", string(status)))
	}

	count(&st.TotalPosts, PostsTable, nil)
	count(&st.PublishedPosts, PostsTable, byStatus(StatusPublished))
	count(&st.DraftPosts, PostsTable, byStatus(StatusDraft))
	count(&st.ScheduledPosts, PostsTable, byStatus(StatusScheduled))
	count(&st.Categories, CategoriesTable, nil)
	count(&st.Tags, TagsTable, nil)

	g.Go(func() error {
		rows, err := s.store.Select(gctx, PostsTable, recordstore.Query{
			Columns: []string{"id", "title", "slug", "status", "published_at", "created_at"},
			Order:   []recordstore.Order{{Column: "created_at", Desc: true}},
			Limit:   recentPostsLimit,
		})
		if err != nil {
			return errors.Wrap(err, "[Stats] recent posts")
		}
		st.RecentPosts = make([]Post, 0, len(rows))
		for _, r := range rows {
			st.RecentPosts = append(st.RecentPosts, postFromRow(r))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}
