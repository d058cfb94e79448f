package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/service"
)

type AdminHandler struct {
	admin  *service.AdminService
	logger *zap.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.admin.CurrentUser(r.Context())
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(u))
}

func (h *AdminHandler) ListPricing(w http.ResponseWriter, r *http.Request) {
	plans, err := h.admin.ListPricing(r.Context())
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(plans))
}

func (h *AdminHandler) CreatePricing(w http.ResponseWriter, r *http.Request) {
	var body domain.CreatePricingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	p, err := h.admin.CreatePricing(r.Context(), body)
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(p))
}

func (h *AdminHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var body domain.UpdatePricingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	p, err := h.admin.UpdatePricing(r.Context(), r.PathValue("id"), body)
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(p))
}

func (h *AdminHandler) DeletePricing(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeletePricing(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Status == "" {
		writeJSON(w, http.StatusBadRequest, Fail("status is required"))
		return
	}
	app, err := h.admin.UpdateApplicationStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(app))
}

func (h *AdminHandler) InvalidateSchemas(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.InvalidateSchemas(r.Context(), r.PathValue("country")); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}
