package server

// Route path constants
const (
	RouteIndex         = "/"
	RouteOAuthCallback = "/oauth-callback"
	RouteStatus        = "/status"
	RouteMetrics       = "/metrics"
)
