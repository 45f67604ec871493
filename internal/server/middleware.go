package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"agriconnect/pkg/types"

	"github.com/sirupsen/logrus"
)

// Context key types to avoid collisions
type contextKey string

const contextKeyActor contextKey = "actor"

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("http request")
	})
}

// RequireSession decodes the session cookie and puts the signed-in actor on
// the request context. Requests without a valid session get a 401.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.sessionActor(r)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "sign in first")
			return
		}

		s.logger.WithFields(logrus.Fields{
			"actor_id": actor.ID,
			"role":     actor.Role,
		}).Debug("authenticated actor")

		ctx := context.WithValue(r.Context(), contextKeyActor, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Service) sessionActor(r *http.Request) (types.Actor, bool) {
	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		s.logger.WithError(err).Debug("no session cookie found")
		return types.Actor{}, false
	}

	var actor types.Actor
	if err := s.cookie.Decode(s.config.CookieName, cookie.Value, &actor); err != nil {
		s.logger.WithError(err).Warn("failed to decode session cookie")
		return types.Actor{}, false
	}

	if !actor.Role.Valid() || actor.ID == "" {
		return types.Actor{}, false
	}

	return actor, true
}

func actorFromContext(ctx context.Context) types.Actor {
	actor, _ := ctx.Value(contextKeyActor).(types.Actor)
	return actor
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Only strip if path is not root and has trailing slash
		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			// 308 keeps the method and body of uploads
			http.Redirect(w, r, newURL.String(), http.StatusPermanentRedirect)
			return
		}

		next.ServeHTTP(w, r)
	})
}
