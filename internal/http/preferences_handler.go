package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"visakal-form/internal/store"
)

// PreferencesHandler theme, language, accessibility, consent, agent and sign-out
type PreferencesHandler struct {
	logger *zap.Logger
}

func NewPreferencesHandler(logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{logger: logger}
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(preferencesFrom(r).View()))
}

func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var body store.PreferencesUpdate
	if !decodeBody(w, r, &body) {
		return
	}
	prefs := preferencesFrom(r)
	if err := prefs.Apply(r.Context(), body); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs.View()))
}

func (h *PreferencesHandler) ToggleTheme(w http.ResponseWriter, r *http.Request) {
	prefs := preferencesFrom(r)
	if _, err := prefs.Theme.Toggle(r.Context()); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs.View()))
}

// SignOut forgets the stored bearer token of the client.
func (h *PreferencesHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	prefs := preferencesFrom(r)
	if err := prefs.AuthToken.Set(r.Context(), ""); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(prefs.View()))
}
