package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CacheControl        string
}

// DefaultHeaders returns headers for a JSON-only API: nothing is meant to
// be rendered, framed or cached.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CacheControl:        "no-store",
	}
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response. Empty fields are skipped.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	set := []struct{ name, value string }{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Cache-Control", cfg.CacheControl},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range set {
				if h.value != "" {
					w.Header().Set(h.name, h.value)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
