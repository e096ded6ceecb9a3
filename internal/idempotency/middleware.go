package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/utafrali/ordercore/pkg/errors"
	"github.com/utafrali/ordercore/pkg/httputil"
	"github.com/utafrali/ordercore/pkg/middleware"
)

// HeaderKey is the request header carrying the client's key.
const HeaderKey = "Idempotency-Key"

// HeaderReplayed marks a response served from the store.
const HeaderReplayed = "Idempotent-Replayed"

const (
	maxKeyLength = 255
	maxBodyBytes = 1 << 20
)

// Error codes.
const (
	CodeInProgress  = "REQUEST_IN_PROGRESS"
	CodeKeyMismatch = "IDEMPOTENCY_KEY_REUSED"
)

// Middleware deduplicates requests carrying an Idempotency-Key. Keys are
// scoped to the authenticated user. Only 2xx responses are stored; any
// other outcome releases the key. If the store is unreachable the request
// runs without deduplication.
func Middleware(store *Store, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				httputil.WriteError(w, r, apperrors.InvalidInput("Idempotency-Key must be at most 255 characters"), l)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httputil.WriteError(w, r, apperrors.InvalidInput("could not read request body"), l)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			scope := middleware.UserIDFromContext(ctx)
			if scope == "" {
				scope = "anonymous"
			}
			fp := fingerprint(r, body)

			existing, reserved, err := store.Reserve(ctx, scope, key, fp)
			if err != nil {
				idempotencyResults.WithLabelValues(resultStoreError).Inc()
				l.WarnContext(ctx, "idempotency store unavailable, running request without deduplication",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !reserved {
				respondExisting(w, r, existing, fp, l)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			completed := false
			defer func() {
				if !completed {
					// Panics and non-2xx results free the key for a retry.
					releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
					defer cancel()
					if err := store.Release(releaseCtx, scope, key); err != nil {
						l.WarnContext(ctx, "failed to release idempotency key", slog.String("error", err.Error()))
					}
				}
			}()

			next.ServeHTTP(rec, r)

			if rec.status < 200 || rec.status >= 300 {
				idempotencyResults.WithLabelValues(resultReleased).Inc()
				return
			}
			completed = true
			idempotencyResults.WithLabelValues(resultStored).Inc()

			err = store.Complete(context.WithoutCancel(ctx), scope, key, Record{
				Fingerprint: fp,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				l.ErrorContext(ctx, "failed to store idempotent response", slog.String("error", err.Error()))
			}
		})
	}
}

func respondExisting(w http.ResponseWriter, r *http.Request, rec *Record, fp string, l *slog.Logger) {
	if rec.Fingerprint != fp {
		idempotencyResults.WithLabelValues(resultMismatch).Inc()
		httputil.WriteError(w, r, &apperrors.AppError{
			Code:    CodeKeyMismatch,
			Message: "Idempotency-Key was already used for a different request",
			Status:  http.StatusUnprocessableEntity,
			Err:     apperrors.ErrInvalidInput,
		}, l)
		return
	}

	if rec.State != StateDone {
		idempotencyResults.WithLabelValues(resultInProgress).Inc()
		httputil.WriteError(w, r, &apperrors.AppError{
			Code:    CodeInProgress,
			Message: "A request with this Idempotency-Key is still being processed",
			Status:  http.StatusConflict,
			Err:     apperrors.ErrConflict,
		}, l)
		return
	}

	idempotencyResults.WithLabelValues(resultReplayed).Inc()
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(HeaderReplayed, strconv.FormatBool(true))
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

// fingerprint identifies the request a key was first used for.
func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// recorder tees the response into a buffer.
type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (rw *recorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *recorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
