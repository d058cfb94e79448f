package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"visakal-form/internal/metrics"
	"visakal-form/internal/store"
)

// Router stdlib http.ServeMux with method patterns. Every /api/v1 route runs behind the
// client middleware.
type Router struct {
	mux     *http.ServeMux
	client  *clientMiddleware
	uploads *clientLimiter
	logger  *zap.Logger
}

func NewRouter(kv store.KV, logger *zap.Logger) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		client: &clientMiddleware{kv: kv, logger: logger},
		logger: logger,
	}
	r.Handle("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	r.mux.Handle("GET /metrics", metrics.Handler())
	return r
}

// LimitUploads throttles file uploads per client. Call it before RegisterFormRoutes.
func (r *Router) LimitUploads(perSecond float64, burst int) {
	if perSecond <= 0 {
		r.uploads = nil
		return
	}
	r.uploads = newClientLimiter(perSecond, burst, r.logger)
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// handleClient registers h behind the client middleware.
func (r *Router) handleClient(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.client.wrap(h))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	metrics.InstrumentHandler(withLogging(r.logger, r.mux)).ServeHTTP(w, req)
}

func (r *Router) RegisterFormRoutes(h *FormHandler) {
	r.handleClient("GET /api/v1/forms", h.ListDrafts)
	r.handleClient("POST /api/v1/forms", h.OpenForm)
	r.handleClient("GET /api/v1/forms/{id}", h.GetForm)
	r.handleClient("DELETE /api/v1/forms/{id}", h.DiscardForm)
	r.handleClient("POST /api/v1/forms/{id}/fields", h.SetField)
	r.handleClient("POST /api/v1/forms/{id}/copy-from-previous", h.CopyFromPrevious)
	r.handleClient("POST /api/v1/forms/{id}/auto-copy", h.ToggleAutoCopy)
	r.handleClient("POST /api/v1/forms/{id}/beneficiaries", h.AddBeneficiary)
	r.handleClient("DELETE /api/v1/forms/{id}/beneficiaries/{index}", h.RemoveBeneficiary)
	r.handleClient("POST /api/v1/forms/{id}/active", h.SetActive)
	upload := h.UploadFile
	if r.uploads != nil {
		upload = r.uploads.wrap(upload)
	}
	r.handleClient("POST /api/v1/forms/{id}/files", upload)
	r.handleClient("DELETE /api/v1/forms/{id}/files", h.RemoveFile)
	r.handleClient("POST /api/v1/forms/{id}/submit", h.Submit)
}

func (r *Router) RegisterApplicationRoutes(h *ApplicationHandler) {
	r.handleClient("GET /api/v1/countries", h.Countries)
	r.handleClient("GET /api/v1/pricing/{country}", h.Pricing)
	r.handleClient("POST /api/v1/applications/{id}/pricing", h.SelectPricing)
	r.handleClient("GET /api/v1/applications", h.Applications)
	r.handleClient("GET /api/v1/applications/export", h.ExportApplications)
	r.handleClient("POST /api/v1/payments", h.ExecutePayment)
}

func (r *Router) RegisterPreferenceRoutes(h *PreferencesHandler) {
	r.handleClient("GET /api/v1/preferences", h.Get)
	r.handleClient("PUT /api/v1/preferences", h.Update)
	r.handleClient("POST /api/v1/preferences/theme/toggle", h.ToggleTheme)
	r.handleClient("POST /api/v1/auth/sign-out", h.SignOut)
}

func (r *Router) RegisterAdminRoutes(h *AdminHandler) {
	r.handleClient("GET /api/v1/me", h.Me)
	r.handleClient("GET /api/v1/admin/pricing", h.ListPricing)
	r.handleClient("POST /api/v1/admin/pricing", h.CreatePricing)
	r.handleClient("PUT /api/v1/admin/pricing/{id}", h.UpdatePricing)
	r.handleClient("DELETE /api/v1/admin/pricing/{id}", h.DeletePricing)
	r.handleClient("PATCH /api/v1/admin/applications/{id}/status", h.UpdateStatus)
	r.handleClient("POST /api/v1/admin/schemas/{country}/invalidate", h.InvalidateSchemas)
}
