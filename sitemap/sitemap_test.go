package sitemap_test

import (
	"context"
	"encoding/xml"
	"errors"
	"testing"
	"time"

	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/sitemap"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 7, 14, 16, 0, 0, 0, time.UTC)

type fakePosts struct {
	posts []blog.Post
	err   error
}

func (f *fakePosts) ListPublished(context.Context, time.Time) ([]blog.Post, error) {
	return f.posts, f.err
}

func TestGenerate_StaticAndPublished(t *testing.T) {
	updated := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)
	published := time.Date(2025, 6, 20, 23, 30, 0, 0, time.UTC)
	g, err := sitemap.NewGenerator("https://jonkersai.nl/", &fakePosts{posts: []blog.Post{
		{Slug: "first-post", UpdatedAt: &updated, PublishedAt: &published},
		{Slug: "second-post", PublishedAt: &published},
	}})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), testNow)
	require.NoError(t, err)
	require.Contains(t, string(out), `<?xml version="1.0" encoding="UTF-8"?>`)
	require.Contains(t, string(out), `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`)

	var set sitemap.URLSet
	require.NoError(t, xml.Unmarshal(out, &set))
	require.Len(t, set.URLs, 6)

	require.Equal(t, sitemap.URL{Loc: "https://jonkersai.nl/", LastMod: "2025-07-14", ChangeFreq: "weekly", Priority: "1.0"}, set.URLs[0])
	require.Equal(t, "https://jonkersai.nl/blog", set.URLs[1].Loc)
	require.Equal(t, "0.8", set.URLs[1].Priority)
	require.Equal(t, sitemap.Monthly, set.URLs[3].ChangeFreq)
	require.Equal(t, "https://jonkersai.nl/book-demo", set.URLs[3].Loc)

	require.Equal(t, sitemap.URL{Loc: "https://jonkersai.nl/blog/first-post", LastMod: "2025-07-01", ChangeFreq: "monthly", Priority: "0.6"}, set.URLs[4])
	require.Equal(t, "2025-06-20", set.URLs[5].LastMod)
}

func TestBuild_StoreFailureKeepsStaticPages(t *testing.T) {
	g, err := sitemap.NewGenerator("https://jonkersai.nl", &fakePosts{err: errors.New("store down")})
	require.NoError(t, err)

	set := g.Build(context.Background(), testNow)
	require.Len(t, set.URLs, len(sitemap.StaticPages))
}

func TestNewGenerator_RequiresBaseURL(t *testing.T) {
	_, err := sitemap.NewGenerator("", nil)
	require.Error(t, err)
}
