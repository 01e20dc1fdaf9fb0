// Package server is the site's JSON API: sign-in, the public blog, the
// contact form, the sitemap and the admin CMS.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonkersai/website/auth"
	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/contact"
	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/server/loginsession"
	"github.com/jonkersai/website/sitemap"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Services are the domain services the routes call into.
type Services struct {
	Auth          *auth.Authenticator
	Blog          *blog.Service
	Contact       *contact.Submitter
	Sitemap       *sitemap.Generator
	LoginSessions loginsession.Repo
}

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	services Services
	nowTime  func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func New(config config.Config, services Services, options ...ServerOption) (*Server, error) {
	if services.Auth == nil {
		return nil, errors.New("[server.New] authenticator is required")
	}
	if services.Blog == nil {
		return nil, errors.New("[server.New] blog service is required")
	}
	if services.Contact == nil {
		return nil, errors.New("[server.New] contact submitter is required")
	}
	if services.Sitemap == nil {
		return nil, errors.New("[server.New] sitemap generator is required")
	}
	if services.LoginSessions == nil {
		return nil, errors.New("[server.New] login session repo is required")
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		services: services,
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", coloredMethod(method), path)
}

func coloredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
