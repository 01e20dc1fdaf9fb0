// Package blog is the admin CMS and public read side of the site's blog.
package blog

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/jonkersai/website/internal/utils"
	"github.com/jonkersai/website/recordstore"
)

// Tables and join tables of the blog.
const (
	PostsTable          = "blog_posts"
	CategoriesTable     = "blog_categories"
	TagsTable           = "blog_tags"
	PostCategoriesTable = "blog_posts_categories"
	PostTagsTable       = "blog_posts_tags"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusScheduled Status = "scheduled"
)

type Post struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt"`
	FeaturedImageURL string     `json:"featured_image_url,omitempty"`
	Status           Status     `json:"status"`
	PublishedAt      *time.Time `json:"published_at"`
	AuthorID         string     `json:"author_id,omitempty"`
	AuthorName       string     `json:"author_name,omitempty"` // public listings only
	MetaTitle        string     `json:"meta_title,omitempty"`
	MetaDescription  string     `json:"meta_description,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`

	CategoryIDs []string `json:"category_ids,omitempty"`
	TagIDs      []string `json:"tag_ids,omitempty"`
	Categories  []Term   `json:"categories,omitempty"` // public listings only
}

// DefaultAuthorName is shown for posts without a known author.
const DefaultAuthorName = "Admin"

// PublicPost is the reader-facing view of a post. It never carries the
// author's account id or address.
type PublicPost struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Slug             string     `json:"slug"`
	Content          string     `json:"content"`
	Excerpt          string     `json:"excerpt"`
	FeaturedImageURL string     `json:"featured_image_url,omitempty"`
	PublishedAt      *time.Time `json:"published_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	AuthorName       string     `json:"author_name"`
	MetaTitle        string     `json:"meta_title,omitempty"`
	MetaDescription  string     `json:"meta_description,omitempty"`
	Categories       []Term     `json:"categories"`
}

func (p Post) Public() PublicPost {
	name := p.AuthorName
	if name == "" {
		name = DefaultAuthorName
	}
	categories := p.Categories
	if categories == nil {
		categories = []Term{}
	}
	return PublicPost{
		ID:               p.ID,
		Title:            p.Title,
		Slug:             p.Slug,
		Content:          p.Content,
		Excerpt:          p.Excerpt,
		FeaturedImageURL: p.FeaturedImageURL,
		PublishedAt:      p.PublishedAt,
		UpdatedAt:        p.UpdatedAt,
		AuthorName:       name,
		MetaTitle:        p.MetaTitle,
		MetaDescription:  p.MetaDescription,
		Categories:       categories,
	}
}

// AuthorNameFromEmail is the part of email before the "@".
func AuthorNameFromEmail(email string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if name == "" {
		return DefaultAuthorName
	}
	return name
}

// PostInput is what the editor submits. An empty ID creates a post.
type PostInput struct {
	ID               string     `json:"id"`
	Title            string     `json:"title" validate:"required"`
	Slug             string     `json:"slug" validate:"required"`
	Content          string     `json:"content" validate:"required"`
	Excerpt          string     `json:"excerpt" validate:"required"`
	FeaturedImageURL string     `json:"featured_image_url" validate:"omitempty,url"`
	Status           Status     `json:"status" validate:"required,oneof=draft published scheduled"`
	PublishedAt      *time.Time `json:"published_at"`
	AuthorID         string     `json:"author_id"`
	MetaTitle        string     `json:"meta_title"`
	MetaDescription  string     `json:"meta_description"`
	CategoryIDs      []string   `json:"category_ids"`
	TagIDs           []string   `json:"tag_ids"`
}

// Term is a category or a tag.
type Term struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	PostCount   int    `json:"post_count"`
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalPosts     int    `json:"total_posts"`
	PublishedPosts int    `json:"published_posts"`
	DraftPosts     int    `json:"draft_posts"`
	ScheduledPosts int    `json:"scheduled_posts"`
	Categories     int    `json:"categories"`
	Tags           int    `json:"tags"`
	RecentPosts    []Post `json:"recent_posts"`
}

// Slugify makes a lowercase URL slug of s.
func Slugify(s string) string {
	return slug.Make(strings.TrimSpace(s))
}

func postFromRow(r recordstore.Row) Post {
	p := Post{
		ID:               recordstore.String(r["id"]),
		Title:            recordstore.String(r["title"]),
		Slug:             recordstore.String(r["slug"]),
		Content:          recordstore.String(r["content"]),
		Excerpt:          recordstore.String(r["excerpt"]),
		FeaturedImageURL: recordstore.String(r["featured_image_url"]),
		Status:           Status(recordstore.String(r["status"])),
		AuthorID:         recordstore.String(r["author_id"]),
		MetaTitle:        recordstore.String(r["meta_title"]),
		MetaDescription:  recordstore.String(r["meta_description"]),
	}
	if t, ok := recordstore.Time(r["published_at"]); ok {
		p.PublishedAt = utils.Ptr(t)
	}
	if t, ok := recordstore.Time(r["created_at"]); ok {
		p.CreatedAt = utils.Ptr(t)
	}
	if t, ok := recordstore.Time(r["updated_at"]); ok {
		p.UpdatedAt = utils.Ptr(t)
	}
	return p
}

func termFromRow(r recordstore.Row) Term {
	return Term{
		ID:          recordstore.String(r["id"]),
		Name:        recordstore.String(r["name"]),
		Slug:        recordstore.String(r["slug"]),
		Description: recordstore.String(r["description"]),
	}
}

// dedupe keeps the first occurrence of every non-empty id.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
