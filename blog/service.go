package blog

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/jonkersai/website/internal/errors"
	"github.com/jonkersai/website/internal/validation"
	"github.com/jonkersai/website/recordstore"
	"github.com/jonkersai/website/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound  = fmt.Errorf("blog: %w", apperrors.ErrNotFound)
	ErrInUse     = fmt.Errorf("blog: term is assigned to posts: %w", apperrors.ErrInvalidInput)
	ErrSlugTaken = fmt.Errorf("blog: slug already in use: %w", apperrors.ErrInvalidInput)
)

// Service reads and writes blog content through a recordstore.Store.
type Service struct {
	store   recordstore.Store
	nowTime func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func NewService(store recordstore.Store, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[blog.NewService] store is required")
	}
	s := &Service{store: store, nowTime: time.Now}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// SavePost creates the post when in.ID is empty and updates it otherwise, then
// replaces its category and tag assignments with the ones in in.
func (s *Service) SavePost(ctx context.Context, in PostInput) (*Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = Slugify(in.Title)
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	now := s.nowTime().UTC()
	row := recordstore.Row{
		"title":              in.Title,
		"slug":               in.Slug,
		"content":            in.Content,
		"excerpt":            in.Excerpt,
		"featured_image_url": in.FeaturedImageURL,
		"status":             string(in.Status),
		"updated_at":         now,
	}
	switch {
	case in.Status == StatusDraft:
		row["published_at"] = nil
	case in.PublishedAt != nil:
		row["published_at"] = in.PublishedAt.UTC()
	default:
		row["published_at"] = now
	}
	if in.AuthorID != "" {
		row["author_id"] = in.AuthorID
	}
	if in.MetaTitle != "" {
		row["meta_title"] = in.MetaTitle
	}
	if in.MetaDescription != "" {
		row["meta_description"] = in.MetaDescription
	}

	postID := in.ID
	if postID == "" {
		row["created_at"] = now
		inserted, err := s.store.Insert(ctx, PostsTable, row)
		if err != nil {
			return nil, storeError(err, "[SavePost] insert")
		}
		if len(inserted) == 0 {
			return nil, errors.New("[SavePost] insert returned no row")
		}
		postID = recordstore.String(inserted[0]["id"])
	} else {
		updated, err := s.store.Update(ctx, PostsTable, recordstore.Where(recordstore.Eq("id", postID)), row)
		if err != nil {
			return nil, storeError(err, "[SavePost] update")
		}
		if len(updated) == 0 {
			return nil, ErrNotFound
		}
	}

	if err := s.replaceJoins(ctx, postID, in.ID != "", PostCategoriesTable, "category_id", in.CategoryIDs); err != nil {
		return nil, err
	}
	if err := s.replaceJoins(ctx, postID, in.ID != "", PostTagsTable, "tag_id", in.TagIDs); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, postID)
}

func (s *Service) replaceJoins(ctx context.Context, postID string, existing bool, table, column string, ids []string) error {
	if existing {
		if err := s.store.Delete(ctx, table, recordstore.Where(recordstore.Eq("post_id", postID))); err != nil {
			return errors.Wrapf(err, "[SavePost] clear %s", table)
		}
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	rows := make([]recordstore.Row, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, recordstore.Row{"post_id": postID, column: id})
	}
	if _, err := s.store.Insert(ctx, table, rows...); err != nil {
		return errors.Wrapf(err, "[SavePost] insert %s", table)
	}
	return nil
}

// GetPost returns a post with its selected category and tag ids.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, error) {
	row, err := recordstore.First(s.store.Select(ctx, PostsTable, recordstore.Query{
		Filter: recordstore.Where(recordstore.Eq("id", id)),
		Limit:  1,
	}))
	if errors.Is(err, recordstore.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[GetPost] select")
	}
	p := postFromRow(row)

	if p.CategoryIDs, err = s.joinedIDs(ctx, PostCategoriesTable, "category_id", id); err != nil {
		return nil, err
	}
	if p.TagIDs, err = s.joinedIDs(ctx, PostTagsTable, "tag_id", id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) joinedIDs(ctx context.Context, table, column, postID string) ([]string, error) {
	rows, err := s.store.Select(ctx, table, recordstore.Query{
		Columns: []string{column},
		Filter:  recordstore.Where(recordstore.Eq("post_id", postID)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "[GetPost] select %s", table)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, recordstore.String(r[column]))
	}
	return ids, nil
}

// ListPosts returns posts newest first, optionally only those with status.
func (s *Service) ListPosts(ctx context.Context, status Status) ([]Post, error) {
	q := recordstore.Query{Order: []recordstore.Order{{Column: "created_at", Desc: true}}}
	if status != "" {
		q.Filter = recordstore.Where(recordstore.Eq("status", string(status)))
	}
	rows, err := s.store.Select(ctx, PostsTable, q)
	if err != nil {
		return nil, errors.Wrap(err, "[ListPosts] select")
	}
	posts := make([]Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, postFromRow(r))
	}
	return posts, nil
}

// DeletePost removes a post and its category and tag assignments.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	f := recordstore.Where(recordstore.Eq("post_id", id))
	if err := s.store.Delete(ctx, PostCategoriesTable, f); err != nil {
		return errors.Wrap(err, "[DeletePost] categories")
	}
	if err := s.store.Delete(ctx, PostTagsTable, f); err != nil {
		return errors.Wrap(err, "[DeletePost] tags")
	}
	if err := s.store.Delete(ctx, PostsTable, recordstore.Where(recordstore.Eq("id", id))); err != nil {
		return storeError(err, "[DeletePost] post")
	}
	return nil
}

// ListPublished returns the posts visible at now, newest first, with their
// category names and author name.
func (s *Service) ListPublished(ctx context.Context, now time.Time) ([]Post, error) {
	rows, err := s.store.Select(ctx, PostsTable, recordstore.Query{
		Filter: recordstore.Where(
			recordstore.Eq("status", string(StatusPublished)),
			recordstore.Lt("published_at", now.UTC()),
		),
		Order: []recordstore.Order{{Column: "published_at", Desc: true}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[ListPublished] select")
	}
	posts := make([]Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, postFromRow(r))
	}
	s.decorate(ctx, posts)
	return posts, nil
}

// GetPublishedBySlug returns one post visible at now.
func (s *Service) GetPublishedBySlug(ctx context.Context, slug string, now time.Time) (*Post, error) {
	row, err := recordstore.First(s.store.Select(ctx, PostsTable, recordstore.Query{
		Filter: recordstore.Where(
			recordstore.Eq("slug", slug),
			recordstore.Eq("status", string(StatusPublished)),
			recordstore.Lt("published_at", now.UTC()),
		),
		Limit: 1,
	}))
	if errors.Is(err, recordstore.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[GetPublishedBySlug] select")
	}
	posts := []Post{postFromRow(row)}
	s.decorate(ctx, posts)
	return &posts[0], nil
}

// decorate fills category names and author names. Lookup failures leave the
// fields empty; the posts are still served.
func (s *Service) decorate(ctx context.Context, posts []Post) {
	if len(posts) == 0 {
		return
	}
	postIDs := make([]string, 0, len(posts))
	authorIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		if p.AuthorID != "" {
			authorIDs = append(authorIDs, p.AuthorID)
		}
	}

	joins, err := s.store.Select(ctx, PostCategoriesTable, recordstore.Query{
		Filter: recordstore.Where(recordstore.In("post_id", anySlice(postIDs)...)),
	})
	if err != nil {
		log.Err(err).Msg("Loading post categories failed")
	}
	categoryIDs := make([]string, 0, len(joins))
	for _, j := range joins {
		categoryIDs = append(categoryIDs, recordstore.String(j["category_id"]))
	}
	terms := make(map[string]Term)
	if categoryIDs = dedupe(categoryIDs); len(categoryIDs) > 0 {
		rows, err := s.store.Select(ctx, CategoriesTable, recordstore.Query{
			Filter: recordstore.Where(recordstore.In("id", anySlice(categoryIDs)...)),
		})
		if err != nil {
			log.Err(err).Msg("Loading categories failed")
		}
		for _, r := range rows {
			t := termFromRow(r)
			terms[t.ID] = t
		}
	}

	emails := make(map[string]string)
	if authorIDs = dedupe(authorIDs); len(authorIDs) > 0 {
		rows, err := s.store.Select(ctx, users.CredentialsTable, recordstore.Query{
			Columns: []string{users.ColumnID, users.ColumnEmail},
			Filter:  recordstore.Where(recordstore.In(users.ColumnID, anySlice(authorIDs)...)),
		})
		if err != nil {
			log.Err(err).Msg("Loading post authors failed")
		}
		for _, r := range rows {
			emails[recordstore.String(r[users.ColumnID])] = recordstore.String(r[users.ColumnEmail])
		}
	}

	for i := range posts {
		p := &posts[i]
		p.AuthorName = DefaultAuthorName
		if email, ok := emails[p.AuthorID]; ok {
			p.AuthorName = AuthorNameFromEmail(email)
		}
		for _, j := range joins {
			if recordstore.String(j["post_id"]) != p.ID {
				continue
			}
			if t, ok := terms[recordstore.String(j["category_id"])]; ok {
				p.Categories = append(p.Categories, t)
			}
		}
	}
}

// storeError maps unique violations to ErrSlugTaken.
func storeError(err error, msg string) error {
	if recordstore.CodeOf(err) == recordstore.CodeUniqueViolation {
		return ErrSlugTaken
	}
	return errors.Wrap(err, msg)
}
