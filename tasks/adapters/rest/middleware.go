package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamtask/tasks/core"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey int

const (
	actorKey ctxKey = iota
	requestIDKey
)

// Authenticator turns a bearer token into the calling actor.
type Authenticator interface {
	Authenticate(token string) (core.Actor, error)
}

func WithActor(ctx context.Context, a core.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFrom(ctx context.Context) (core.Actor, bool) {
	a, ok := ctx.Value(actorKey).(core.Actor)
	return a, ok
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog tags every request with an id and logs one line when it completes.
// An incoming X-Request-ID is kept.
func AccessLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		log.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// Authenticate requires a valid "Authorization: Bearer <token>" header.
func Authenticate(log *slog.Logger, auth Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			WriteErr(w, log, core.ErrUnauthorized)
			return
		}
		actor, err := auth.Authenticate(token)
		if err != nil {
			log.Debug("token rejected", "request_id", RequestID(r.Context()), "error", err)
			WriteErr(w, log, core.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireRole rejects authenticated actors whose role differs from role.
func RequireRole(log *slog.Logger, role core.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			WriteErr(w, log, core.ErrUnauthorized)
			return
		}
		if actor.Role != role {
			WriteErr(w, log, core.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
