package server

import (
	"net/http"

	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/contact"
	"github.com/rs/zerolog/log"
)

// PublishedPostsHandler lists the posts visible now (GET /api/blog/posts)
func (s *Server) PublishedPostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := s.services.Blog.ListPublished(r.Context(), s.nowTime())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out := make([]blog.PublicPost, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.Public())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PublishedPostHandler returns one visible post (GET /api/blog/posts/{slug})
func (s *Server) PublishedPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := s.services.Blog.GetPublishedBySlug(r.Context(), r.PathValue("slug"), s.nowTime())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post.Public())
	}
}

// ContactHandler accepts the contact form (POST /api/contact)
func (s *Server) ContactHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contact.Request
		if !decodeJSON(w, r, &req) {
			return
		}
		outcome, err := s.services.Contact.Submit(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, outcome)
	}
}

// SitemapHandler serves the generated sitemap (GET /sitemap.xml)
func (s *Server) SitemapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := s.services.Sitemap.Generate(r.Context(), s.nowTime())
		if err != nil {
			log.Err(err).Msg("Failed to render sitemap")
			http.Error(w, "Failed to render sitemap", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		_, _ = w.Write(doc)
	}
}
