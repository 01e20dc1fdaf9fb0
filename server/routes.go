package server

import "net/http"

func (s *Server) initRoutes() {
	api := s.APIMiddleware()
	admin := s.APIMiddleware(s.RequireLogin(), s.RequireAdmin())

	s.RegisterRouteHandler("OPTIONS "+RouteAPIPreflight, ChainMiddleware(s.PreflightHandler(), api...))

	// AUTH
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.RequireLogin())...))

	// PUBLIC
	s.RegisterRouteHandler("GET "+RouteBlogPosts, ChainMiddleware(s.PublishedPostsHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteBlogPost, ChainMiddleware(s.PublishedPostHandler(), api...))
	s.RegisterRouteHandler("POST "+RouteContact, ChainMiddleware(s.ContactHandler(), api...))
	s.RegisterRouteHandler("GET "+RouteSitemap, ChainMiddleware(s.SitemapHandler(), s.SiteMiddleware(s.CacheMiddleware, s.CompressionMiddleware)...))
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())

	// ADMIN
	s.RegisterRouteHandler("GET "+RouteAdminStats, ChainMiddleware(s.AdminStatsHandler(), admin...))

	s.RegisterRouteHandler("GET "+RouteAdminPosts, ChainMiddleware(s.AdminListPostsHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteAdminPosts, ChainMiddleware(s.AdminSavePostHandler(), admin...))
	s.RegisterRouteHandler("GET "+RouteAdminPost, ChainMiddleware(s.AdminGetPostHandler(), admin...))
	s.RegisterRouteHandler("PUT "+RouteAdminPost, ChainMiddleware(s.AdminSavePostHandler(), admin...))
	s.RegisterRouteHandler("DELETE "+RouteAdminPost, ChainMiddleware(s.AdminDeletePostHandler(), admin...))

	s.RegisterRouteHandler("GET "+RouteAdminCategories, ChainMiddleware(s.AdminListCategoriesHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteAdminCategories, ChainMiddleware(s.AdminCreateCategoryHandler(), admin...))
	s.RegisterRouteHandler("PUT "+RouteAdminCategory, ChainMiddleware(s.AdminUpdateCategoryHandler(), admin...))
	s.RegisterRouteHandler("DELETE "+RouteAdminCategory, ChainMiddleware(s.AdminDeleteCategoryHandler(), admin...))

	s.RegisterRouteHandler("GET "+RouteAdminTags, ChainMiddleware(s.AdminListTagsHandler(), admin...))
	s.RegisterRouteHandler("POST "+RouteAdminTags, ChainMiddleware(s.AdminCreateTagHandler(), admin...))
	s.RegisterRouteHandler("PUT "+RouteAdminTag, ChainMiddleware(s.AdminRenameTagHandler(), admin...))
	s.RegisterRouteHandler("DELETE "+RouteAdminTag, ChainMiddleware(s.AdminDeleteTagHandler(), admin...))
}

// PreflightHandler answers CORS preflight requests; CorsMiddleware does the work.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
