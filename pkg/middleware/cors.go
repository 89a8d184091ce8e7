package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the storefront origins allowed to call the API.
	// An entry may use one leading wildcard label ("https://*.shop.example")
	// to admit every store subdomain. "*" admits any origin.
	AllowedOrigins []string

	// AllowedMethods defaults to GET, POST, PUT, PATCH, DELETE, OPTIONS.
	AllowedMethods []string

	// AllowedHeaders defaults to the storefront request headers.
	AllowedHeaders []string

	// ExposedHeaders lists the response headers scripts may read.
	ExposedHeaders []string

	// MaxAge is how long (in seconds) preflight results can be cached.
	// Defaults to 3600 if 0.
	MaxAge int

	// AllowCredentials indicates whether cookies and auth headers are supported.
	// Browsers refuse "*" together with credentials, so the request origin is
	// echoed instead.
	AllowCredentials bool

	// Environment controls wildcard behavior. Wildcard origins are only
	// accepted when Environment is "development" or AllowedOrigins explicitly contains "*".
	Environment string
}

var defaultAllowedHeaders = []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", "X-Correlation-ID", "X-Store-ID", "X-User-ID"}

// DefaultCORSConfig returns the development configuration of the checkout
// API. Location is exposed so a storefront can follow a created session.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: defaultAllowedHeaders,
		ExposedHeaders: []string{"Location", "X-Correlation-ID"},
		MaxAge:         3600,
		Environment:    "development",
	}
}

type originMatcher struct {
	exact    map[string]struct{}
	suffixes []originSuffix
	any      bool
}

type originSuffix struct {
	scheme string
	domain string
}

func newOriginMatcher(origins []string, allowAny bool) originMatcher {
	m := originMatcher{exact: make(map[string]struct{}, len(origins)), any: allowAny}
	for _, o := range origins {
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			scheme, domain, _ := strings.Cut(o, "://*")
			m.suffixes = append(m.suffixes, originSuffix{scheme: scheme + "://", domain: domain})
		default:
			m.exact[o] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allowed(origin string) bool {
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, s := range m.suffixes {
		if !strings.HasPrefix(origin, s.scheme) {
			continue
		}
		host := strings.TrimPrefix(origin, s.scheme)
		if strings.HasSuffix(host, s.domain) && len(host) > len(s.domain) && !strings.Contains(strings.TrimSuffix(host, s.domain), "/") {
			return true
		}
	}
	return false
}

// CORS returns middleware that handles Cross-Origin Resource Sharing headers
// based on the provided configuration.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowedMethods) == 0 {
		cfg.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cfg.AllowedHeaders) == 0 {
		cfg.AllowedHeaders = defaultAllowedHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 3600
	}

	origins := newOriginMatcher(cfg.AllowedOrigins, cfg.Environment == "development")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()

			switch {
			case origins.any && !(cfg.AllowCredentials && origin != ""):
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "" && (origins.any || origins.allowed(origin)):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}

			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}
			h.Set("Access-Control-Max-Age", maxAge)

			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
