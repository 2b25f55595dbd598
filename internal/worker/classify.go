package worker

import (
	"strings"

	"github.com/varoOP/clubgate/internal/domain"
	"github.com/varoOP/clubgate/internal/media"
)

type Strategy string

const (
	StrategyPassthrough          Strategy = "passthrough"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// Role names one of the four versioned partitions
type Role string

const (
	RoleCore    Role = "core"
	RoleRuntime Role = "runtime"
	RoleImages  Role = "images"
	RoleAPI     Role = "api"
)

// Roles lists every versioned partition role
var Roles = []Role{RoleCore, RoleRuntime, RoleImages, RoleAPI}

// OfflineFallback is served to navigations when both network and cache miss
const OfflineFallback = "/index.html"

// Route is the outcome of classifying a request
type Route struct {
	Strategy Strategy
	Role     Role
	// Fallback is a site path looked up when the network and the exact match both fail
	Fallback string
}

var fontHosts = []string{
	"fonts.googleapis.com",
	"fonts.gstatic.com",
	"use.typekit.net",
	"fonts.bunny.net",
}

var publicAPIPrefixes = []string{
	"/api/events",
	"/api/sports",
	"/api/social-work",
	"/api/gallery",
	"/api/members",
	"/api/news",
	"/api/settings",
	"/api/pages",
	"/api/slider-images",
	"/api/public",
	"/api/upload/file",
}

// Classify picks the strategy and partition for a request. It performs no I/O.
func Classify(req *domain.Request) Route {
	if req == nil || req.URL == nil || !req.IsGet() {
		return Route{Strategy: StrategyPassthrough}
	}

	switch {
	case isNavigation(req):
		return Route{Strategy: StrategyNetworkFirst, Role: RoleCore, Fallback: OfflineFallback}
	case isImageOrFont(req):
		return Route{Strategy: StrategyCacheFirst, Role: RoleImages}
	case isPublicAPI(req):
		return Route{Strategy: StrategyNetworkFirst, Role: RoleAPI}
	default:
		return Route{Strategy: StrategyStaleWhileRevalidate, Role: RoleRuntime}
	}
}

func isNavigation(req *domain.Request) bool {
	return req.Mode == domain.ModeNavigate || req.Destination == domain.DestinationDocument
}

func isImageOrFont(req *domain.Request) bool {
	if req.Destination == domain.DestinationImage || req.Destination == domain.DestinationFont {
		return true
	}

	if media.LooksLikeImage(req.URL.Path) {
		return true
	}

	host := strings.ToLower(req.URL.Hostname())
	for _, h := range fontHosts {
		if host == h {
			return true
		}
	}

	return false
}

// isPublicAPI matches allow-listed API paths sent without credentials.
// A request carrying Authorization or a cookie may return per-user data and is
// never treated as public.
func isPublicAPI(req *domain.Request) bool {
	path := req.URL.Path
	if !strings.HasPrefix(path, "/api/") {
		return false
	}

	if carriesCredentials(req) {
		return false
	}

	for _, prefix := range publicAPIPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}

	return false
}
