package server

import (
	"net/http"

	"github.com/jonkersai/website/blog"
	"github.com/rs/zerolog/log"
)

type termRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) AdminStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.services.Blog.Stats(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// AdminListPostsHandler lists every post, optionally filtered with ?status=
func (s *Server) AdminListPostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		posts, err := s.services.Blog.ListPosts(r.Context(), blog.Status(r.URL.Query().Get("status")))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func (s *Server) AdminGetPostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		post, err := s.services.Blog.GetPost(r.Context(), r.PathValue("id"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, post)
	}
}

// AdminSavePostHandler creates a post (POST) or replaces one (PUT .../{id}).
// The signed-in admin becomes the author when none is given.
func (s *Server) AdminSavePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in blog.PostInput
		if !decodeJSON(w, r, &in) {
			return
		}
		in.ID = r.PathValue("id")
		if in.AuthorID == "" {
			if ls, ok := LoginSessionFromContext(r.Context()); ok {
				in.AuthorID = ls.UserID
			}
		}

		post, err := s.services.Blog.SavePost(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status := http.StatusOK
		if in.ID == "" {
			status = http.StatusCreated
		}
		log.Info().Str("post", post.ID).Str("status", string(post.Status)).Msg("Post saved")
		writeJSON(w, status, post)
	}
}

func (s *Server) AdminDeletePostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Blog.DeletePost(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) AdminListCategoriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terms, err := s.services.Blog.ListCategories(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, terms)
	}
}

func (s *Server) AdminCreateCategoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req termRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		term, err := s.services.Blog.CreateCategory(r.Context(), req.Name, req.Description)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, term)
	}
}

func (s *Server) AdminUpdateCategoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req termRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		term, err := s.services.Blog.UpdateCategory(r.Context(), r.PathValue("id"), req.Name, req.Description)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, term)
	}
}

func (s *Server) AdminDeleteCategoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Blog.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) AdminListTagsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		terms, err := s.services.Blog.ListTags(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, terms)
	}
}

func (s *Server) AdminCreateTagHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req termRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		term, err := s.services.Blog.CreateTag(r.Context(), req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, term)
	}
}

func (s *Server) AdminRenameTagHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req termRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		term, err := s.services.Blog.RenameTag(r.Context(), r.PathValue("id"), req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, term)
	}
}

func (s *Server) AdminDeleteTagHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.services.Blog.DeleteTag(r.Context(), r.PathValue("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
