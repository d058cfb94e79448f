package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/payment"
	"visakal-form/internal/service"
)

// ApplicationHandler countries, pricing, history and payment
type ApplicationHandler struct {
	apps   *service.ApplicationService
	logger *zap.Logger
}

func NewApplicationHandler(apps *service.ApplicationService, logger *zap.Logger) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, logger: logger}
}

func (h *ApplicationHandler) Countries(w http.ResponseWriter, r *http.Request) {
	out, err := h.apps.Countries(r.Context())
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

func (h *ApplicationHandler) Pricing(w http.ResponseWriter, r *http.Request) {
	plans, err := h.apps.Pricing(r.Context(), r.PathValue("country"))
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(plans))
}

func (h *ApplicationHandler) SelectPricing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PricingID string `json:"pricing_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	app, err := h.apps.SelectPricing(r.Context(), r.PathValue("id"), body.PricingID)
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(app))
}

// applicationItem adds the badge colour to an application
type applicationItem struct {
	domain.Application
	StatusColor string `json:"status_color"`
}

func (h *ApplicationHandler) Applications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.apps.Applications(r.Context())
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	items := make([]applicationItem, 0, len(apps))
	for _, a := range apps {
		items = append(items, applicationItem{Application: a, StatusColor: domain.StatusColor(a.Status)})
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

func (h *ApplicationHandler) ExportApplications(w http.ResponseWriter, r *http.Request) {
	data, err := h.apps.ExportApplications(r.Context(), languageFrom(r))
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	filename := "applications_" + time.Now().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ApplicationHandler) ExecutePayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"session_id"`
		RequestID string `json:"request_id"`
		PricingID string `json:"pricing_id"`
		Currency  string `json:"currency"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	lang := languageFrom(r)
	req := service.PaymentRequest{
		ClientID:  clientIDFrom(r),
		SessionID: body.SessionID,
		RequestID: body.RequestID,
		PricingID: body.PricingID,
		Currency:  payment.ParseCurrency(body.Currency),
		Language:  lang,
	}
	if p := preferencesFrom(r); p != nil {
		req.Agent = p.AgentID
	}
	res, err := h.apps.ExecutePayment(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, lang, err)
		return
	}
	switch res.Outcome {
	case payment.OutcomeError:
		writeJSON(w, http.StatusBadGateway, FailWith(res.Message.Get(lang), res))
	case payment.OutcomeNotConfigured:
		writeJSON(w, http.StatusOK, Warn(ResultSuccess, res.Message.Get(lang), res))
	default:
		writeJSON(w, http.StatusOK, Ok(res))
	}
}
