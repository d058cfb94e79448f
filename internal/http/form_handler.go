package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"visakal-form/internal/domain"
	"visakal-form/internal/form"
	"visakal-form/internal/service"
)

// FormHandler form session endpoints
type FormHandler struct {
	forms          *service.FormService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewFormHandler(forms *service.FormService, maxUploadBytes int64, logger *zap.Logger) *FormHandler {
	return &FormHandler{forms: forms, maxUploadBytes: maxUploadBytes, logger: logger}
}

func (h *FormHandler) reply(w http.ResponseWriter, r *http.Request, resp *service.FormResponse, err error) {
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *FormHandler) OpenForm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CountryID string `json:"country_id"`
		RequestID string `json:"request_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.forms.OpenForm(r.Context(), service.OpenFormRequest{
		ClientID:  clientIDFrom(r),
		CountryID: body.CountryID,
		RequestID: body.RequestID,
		Language:  languageFrom(r),
	})
	h.reply(w, r, resp, err)
}

func (h *FormHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.forms.ListDrafts(r.Context(), clientIDFrom(r))
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(drafts))
}

func (h *FormHandler) GetForm(w http.ResponseWriter, r *http.Request) {
	resp, err := h.forms.GetForm(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r))
	h.reply(w, r, resp, err)
}

func (h *FormHandler) DiscardForm(w http.ResponseWriter, r *http.Request) {
	if err := h.forms.DiscardForm(r.Context(), clientIDFrom(r), r.PathValue("id")); err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	writeJSON(w, http.StatusOK, Ok[any](nil))
}

func (h *FormHandler) SetField(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Beneficiary int          `json:"beneficiary"`
		Field       string       `json:"field"`
		Value       domain.Value `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.forms.SetField(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), body.Beneficiary, body.Field, body.Value)
	h.reply(w, r, resp, err)
}

func (h *FormHandler) CopyFromPrevious(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Beneficiary int    `json:"beneficiary"`
		Field       string `json:"field"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.forms.CopyFromPrevious(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), body.Beneficiary, body.Field)
	h.reply(w, r, resp, err)
}

func (h *FormHandler) ToggleAutoCopy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field   string `json:"field"`
		Enabled bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.forms.ToggleAutoCopy(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), body.Field, body.Enabled)
	h.reply(w, r, resp, err)
}

func (h *FormHandler) AddBeneficiary(w http.ResponseWriter, r *http.Request) {
	resp, err := h.forms.AddBeneficiary(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r))
	h.reply(w, r, resp, err)
}

func (h *FormHandler) RemoveBeneficiary(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid beneficiary index"))
		return
	}
	resp, err := h.forms.RemoveBeneficiary(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), index)
	h.reply(w, r, resp, err)
}

func (h *FormHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Beneficiary int `json:"beneficiary"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	resp, err := h.forms.SetActive(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), body.Beneficiary)
	h.reply(w, r, resp, err)
}

// UploadFile multipart form: beneficiary, field, file. A request without a file part is
// a cancelled picker and leaves the field alone.
func (h *FormHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid multipart body"))
		return
	}
	index := beneficiaryIndex(r.FormValue("beneficiary"))
	field := r.FormValue("field")

	var selected *form.SelectedFile
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("failed to read file"))
			return
		}
		selected = &form.SelectedFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		}
	} else if err != http.ErrMissingFile {
		writeJSON(w, http.StatusBadRequest, Fail("invalid file part"))
		return
	}

	resp, err := h.forms.UploadFile(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), index, field, selected)
	h.reply(w, r, resp, err)
}

func (h *FormHandler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	index := beneficiaryIndex(q.Get("beneficiary"))
	resp, err := h.forms.RemoveFile(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), index, q.Get("field"))
	h.reply(w, r, resp, err)
}

func (h *FormHandler) Submit(w http.ResponseWriter, r *http.Request) {
	agentID := ""
	if p := preferencesFrom(r); p != nil {
		agentID = p.AgentID.Get()
	}
	resp, err := h.forms.Submit(r.Context(), clientIDFrom(r), r.PathValue("id"), languageFrom(r), agentID)
	if err != nil {
		writeError(w, h.logger, languageFrom(r), err)
		return
	}
	if !resp.Valid {
		writeJSON(w, http.StatusUnprocessableEntity, Warn(ResultError, "validation failed", resp))
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
