package throttle

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/middleware"
)

// Middleware throttles requests per authenticated user, or per client IP
// for anonymous callers. Rejections are 429 with a Retry-After header.
func (t *Throttle) Middleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := RequestKey(r)
			d, err := t.Admit(r.Context(), key)
			if err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(t.cfg.Limit))
			if d.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}

			if !d.Allowed {
				l.WarnContext(r.Context(), "checkout throttled",
					slog.String("key", key),
					slog.Duration("retry_after", d.RetryAfter),
				)
				w.Header().Set("Retry-After", retryAfterSeconds(d.RetryAfter))
				httputil.WriteError(w, r, apperrors.TooManyRequests("Too many order attempts, please try again later"), l)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestKey returns "user:<id>" for authenticated requests and
// "ip:<addr>" otherwise.
func RequestKey(r *http.Request) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first valid address in X-Forwarded-For, then
// X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for part := range strings.SplitSeq(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
