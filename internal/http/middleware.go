package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/store"
)

// ClientIDHeader scopes preferences and form sessions to one browser.
const ClientIDHeader = "X-Client-ID"

type prefsKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging logs one line per request.
func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("HTTP request failed", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	})
}

// clientMiddleware loads the client's preferences and puts the request's bearer token
// on the context.
type clientMiddleware struct {
	kv     store.KV
	logger *zap.Logger
}

func (m *clientMiddleware) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := strings.TrimSpace(r.Header.Get(ClientIDHeader))
		if clientID == "" {
			writeJSON(w, http.StatusBadRequest, Fail(ClientIDHeader+" header is required"))
			return
		}
		ctx := r.Context()
		prefs := store.NewPreferences(m.kv, clientID)
		if err := prefs.Init(ctx); err != nil {
			// defaults are served while the store is down
			m.logger.Warn("Failed to load preferences", zap.String("client_id", clientID), zap.Error(err))
		}

		// only a token the request presents is forwarded; the stored one marks the
		// client as signed in and is never replayed on behalf of X-Client-ID
		if token := bearerToken(r); token != "" {
			if token != prefs.AuthToken.Get() {
				if err := prefs.AuthToken.Set(ctx, token); err != nil {
					m.logger.Warn("Failed to store auth token", zap.String("client_id", clientID), zap.Error(err))
				}
			}
			ctx = store.WithAuthToken(ctx, token)
		}
		ctx = context.WithValue(ctx, prefsKey{}, prefs)
		next(w, r.WithContext(ctx))
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func preferencesFrom(r *http.Request) *store.Preferences {
	p, _ := r.Context().Value(prefsKey{}).(*store.Preferences)
	return p
}

func clientIDFrom(r *http.Request) string {
	if p := preferencesFrom(r); p != nil {
		return p.ClientID
	}
	return ""
}

// languageFrom ?lang= wins over the stored language preference.
func languageFrom(r *http.Request) domain.Language {
	if l := r.URL.Query().Get("lang"); l != "" {
		return domain.ParseLanguage(l)
	}
	if p := preferencesFrom(r); p != nil {
		return p.Language.Get()
	}
	return domain.LangEN
}
