package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthLogin      = "/api/auth/login"
	RouteAuthLogout     = "/api/auth/logout"
	RouteAuthSession    = "/api/auth/session"
	RouteChangePassword = "/api/auth/change-password"

	// Public Routes
	RouteBlogPosts = "/api/blog/posts"
	RouteBlogPost  = "/api/blog/posts/{slug}"
	RouteContact   = "/api/contact"
	RouteSitemap   = "/sitemap.xml"
	RouteHealth    = "/healthz"

	// Admin Routes
	RouteAdminStats      = "/api/admin/stats"
	RouteAdminPosts      = "/api/admin/posts"
	RouteAdminPost       = "/api/admin/posts/{id}"
	RouteAdminCategories = "/api/admin/categories"
	RouteAdminCategory   = "/api/admin/categories/{id}"
	RouteAdminTags       = "/api/admin/tags"
	RouteAdminTag        = "/api/admin/tags/{id}"

	// CORS preflight for every API route
	RouteAPIPreflight = "/api/"
)
