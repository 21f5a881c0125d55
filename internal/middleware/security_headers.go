package middleware

import "net/http"

type SecurityHeadersConfig struct {
	Env string
}

const (
	productionCSP = "default-src 'self'; img-src 'self' data: blob:; media-src 'self' blob:; " +
		"connect-src 'self' wss:; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"
	developmentCSP = "default-src 'self' http: https: ws:; img-src 'self' data: blob: http: https:; " +
		"media-src 'self' blob: http: https:; connect-src 'self' http: https: ws: wss:; " +
		"frame-ancestors 'self'; base-uri 'self'; form-action 'self'"
)

// SecurityHeaders sets the response hardening headers.
func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	production := config.Env == "production"
	csp := developmentCSP
	if production {
		csp = productionCSP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", csp)
			h.Set("Permissions-Policy", "camera=(), geolocation=(), microphone=(), payment=(), usb=()")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")

			// HSTS only over TLS.
			if production && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}
