// Package sitemap renders sitemaps.org XML for the static pages and the
// published blog posts.
package sitemap

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/jonkersai/website/blog"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	Namespace  = "http://www.sitemaps.org/schemas/sitemap/0.9"
	dateLayout = "2006-01-02"
)

type ChangeFreq string

const (
	Weekly  ChangeFreq = "weekly"
	Monthly ChangeFreq = "monthly"
)

// Page is a static route of the site.
type Page struct {
	Path       string
	ChangeFreq ChangeFreq
	Priority   string
}

// StaticPages are listed in every sitemap, with today's date as lastmod.
var StaticPages = []Page{
	{Path: "/", ChangeFreq: Weekly, Priority: "1.0"},
	{Path: "/blog", ChangeFreq: Weekly, Priority: "0.8"},
	{Path: "/contact", ChangeFreq: Monthly, Priority: "0.7"},
	{Path: "/book-demo", ChangeFreq: Monthly, Priority: "0.7"},
}

const (
	postChangeFreq = Monthly
	postPriority   = "0.6"
)

type URL struct {
	Loc        string     `xml:"loc"`
	LastMod    string     `xml:"lastmod,omitempty"`
	ChangeFreq ChangeFreq `xml:"changefreq,omitempty"`
	Priority   string     `xml:"priority,omitempty"`
}

type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// PostSource lists the posts visible at now.
type PostSource interface {
	ListPublished(ctx context.Context, now time.Time) ([]blog.Post, error)
}

var _ PostSource = (*blog.Service)(nil)

type Generator struct {
	baseURL string
	posts   PostSource
}

// NewGenerator returns a generator for baseURL (scheme and host, no trailing slash).
func NewGenerator(baseURL string, posts PostSource) (*Generator, error) {
	if baseURL == "" {
		return nil, errors.New("[sitemap.NewGenerator] base url is required")
	}
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), posts: posts}, nil
}

// Build collects the sitemap entries. A failure to list posts is logged and
// the static pages are returned alone.
func (g *Generator) Build(ctx context.Context, now time.Time) *URLSet {
	today := now.UTC().Format(dateLayout)
	set := &URLSet{Xmlns: Namespace}
	for _, p := range StaticPages {
		set.URLs = append(set.URLs, URL{
			Loc:        g.baseURL + p.Path,
			LastMod:    today,
			ChangeFreq: p.ChangeFreq,
			Priority:   p.Priority,
		})
	}
	if g.posts == nil {
		return set
	}

	posts, err := g.posts.ListPublished(ctx, now)
	if err != nil {
		log.Err(err).Msg("Listing posts for sitemap failed")
		return set
	}
	for _, p := range posts {
		u := URL{
			Loc:        g.baseURL + "/blog/" + p.Slug,
			ChangeFreq: postChangeFreq,
			Priority:   postPriority,
		}
		switch {
		case p.UpdatedAt != nil:
			u.LastMod = p.UpdatedAt.UTC().Format(dateLayout)
		case p.PublishedAt != nil:
			u.LastMod = p.PublishedAt.UTC().Format(dateLayout)
		}
		set.URLs = append(set.URLs, u)
	}
	return set
}

// Generate renders the sitemap document.
func (g *Generator) Generate(ctx context.Context, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(g.Build(ctx, now)); err != nil {
		return nil, errors.Wrap(err, "[sitemap.Generate] encode")
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
