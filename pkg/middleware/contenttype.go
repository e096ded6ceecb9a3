package middleware

import (
	"log/slog"
	"mime"
	"net/http"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/httputil"
)

// ContentTypeJSON rejects request bodies that are not application/json.
// Requests without a body pass through.
func ContentTypeJSON(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 || r.Method == http.MethodGet || r.Method == http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				httputil.WriteError(w, r, apperrors.InvalidInput("Content-Type must be application/json"), l)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
