package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/inventory-sync/pkg/config"
)

const devDashboardOrigin = "http://localhost:3000"

// CORS serves browser callers such as the admin dashboard. With no
// configured origins, dev allows the local dashboard and every other
// environment allows none.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	origins := corsOrigins(app)
	var denyAll func(*http.Request, string) bool
	if len(origins) == 0 {
		// an empty list means "allow all" to the cors package
		denyAll = func(*http.Request, string) bool { return false }
	}
	return cors.New(cors.Options{
		AllowOriginFunc: denyAll,
		AllowedOrigins:  origins,
		AllowedMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:  []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:  []string{requestIDHeader, ReplayedHeader},
		// wildcard origins never carry credentials
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	}).Handler
}

func corsOrigins(app config.AppConfig) []string {
	var origins []string
	for _, origin := range app.CORSOrigins {
		if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 && app.IsDev() {
		origins = []string{devDashboardOrigin}
	}
	return origins
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
