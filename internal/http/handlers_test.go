package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visakal-form/internal/payment"
	"visakal-form/internal/repository"
	"visakal-form/internal/service"
	"visakal-form/internal/store"
	"visakal-form/internal/visaapi"
)

const backendSchema = `{
  "country_id": "thailand",
  "country_name": {"en": "Thailand", "he": "תאילנד"},
  "submit_button_text": {"en": "Continue", "he": "המשך"},
  "fields": [
    {"name": "name", "label": {"en": "Name", "he": "שם"}, "field_type": "string", "required": true},
    {"name": "passport_scan", "label": {"en": "Passport", "he": "דרכון"}, "field_type": "document"}
  ]
}`

// fakeBackend records what reached the visa API.
type fakeBackend struct {
	mu         sync.Mutex
	authHeader []string
	validated  []json.RawMessage
	created    []json.RawMessage
	uploads    []string
	invalid    bool
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		b.mu.Lock()
		b.authHeader = append(b.authHeader, r.Header.Get("Authorization"))
		b.mu.Unlock()
	}
	mux.HandleFunc("GET /api/form-schema/{country}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.PathValue("country") != "thailand" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Country not found"}`))
			return
		}
		_, _ = w.Write([]byte(backendSchema))
	})
	mux.HandleFunc("POST /api/validate/{country}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.validated = append(b.validated, body)
		invalid := b.invalid
		b.mu.Unlock()
		if invalid {
			_, _ = w.Write([]byte(`{"valid":false,"errors":[{"name":{"message":{"en":"Name is required","he":"שם חובה"}}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"valid":true,"errors":[{}]}`))
	})
	mux.HandleFunc("POST /api/applications", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.created = append(b.created, body)
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"req-100","country_id":"thailand","status":"pending_payment","beneficiaries":[]}`))
	})
	mux.HandleFunc("GET /api/applications", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Not authenticated"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"req-100","country_id":"thailand","status":"approved","beneficiaries":[{"id":"b1","form_data":{"name":"Ann"}}]}]`))
	})
	mux.HandleFunc("POST /api/upload-file", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		b.mu.Lock()
		b.uploads = append(b.uploads, r.URL.Query().Get("field_name")+":"+header.Filename)
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"url":"https://files.test/x_` + header.Filename + `","field_name":"passport_scan","filename":"` + header.Filename + `"}`))
	})
	mux.HandleFunc("GET /api/countries", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"available":[{"id":"thailand","name":{"en":"Thailand","he":"תאילנד"},"flag_svg_link":"","enabled":true}],"coming_soon":[]}`))
	})
	mux.HandleFunc("GET /api/payment/config", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"payme_available":false}`))
	})
	mux.HandleFunc("PATCH /api/applications/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		_, _ = w.Write([]byte(`{"id":"` + r.PathValue("id") + `","status":"payment_received"}`))
	})
	return mux
}

type testEnv struct {
	backend *fakeBackend
	router  *Router
	kv      *store.MemoryKV
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := zap.NewNop()
	kv := store.NewMemoryKV()
	api := visaapi.NewClient(srv.URL, 5*time.Second, visaapi.TokenFunc(store.AuthTokenFromContext), logger)
	schemas := visaapi.NewCachedSchemaSource(api, kv, time.Minute, logger)

	forms := service.NewFormService(service.FormServiceConfig{
		API:     api,
		Schemas: schemas,
		Drafts:  repository.NewMemoryDraftsRepository(),
		Logger:  logger,
	})
	exec := payment.NewExecutor(api, nil, "https://visakal.test", logger)
	rates := payment.NewRateSource(payment.DefaultUSDToILS, logger)
	apps := service.NewApplicationService(api, forms, exec, rates, nil, logger)

	router := NewRouter(kv, logger)
	router.RegisterFormRoutes(NewFormHandler(forms, 5<<20, logger))
	router.RegisterApplicationRoutes(NewApplicationHandler(apps, logger))
	router.RegisterPreferenceRoutes(NewPreferencesHandler(logger))
	router.RegisterAdminRoutes(NewAdminHandler(service.NewAdminService(api, schemas, logger), logger))

	return &testEnv{backend: backend, router: router, kv: kv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set(ClientIDHeader, "client-1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type formEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		ID             string `json:"id"`
		State          string `json:"state"`
		Dir            string `json:"dir"`
		SubmitDisabled bool   `json:"submit_disabled"`
		Beneficiaries  []struct {
			Title  string `json:"title"`
			Fields []struct {
				Name  string          `json:"name"`
				Value json.RawMessage `json:"value"`
				Error string          `json:"error"`
			} `json:"fields"`
		} `json:"beneficiaries"`
	} `json:"result"`
}

func decodeForm(t *testing.T, w *httptest.ResponseRecorder) formEnvelope {
	t.Helper()
	var env formEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/countries", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="GET /api/v1/countries"`)
}

func TestClientIDRequired(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/preferences", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFormFlow_OpenEditSubmit(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"Authorization": "Bearer tok-1"}

	w := env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "thailand"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	opened := decodeForm(t, w)
	assert.Equal(t, ResultSuccess, opened.Code)
	assert.Equal(t, "editing", opened.Result.State)
	id := opened.Result.ID
	require.NotEmpty(t, id)

	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/fields", map[string]any{"beneficiary": 0, "field": "name", "value": "Ann"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/beneficiaries", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeForm(t, w).Result.Beneficiaries, 2)

	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/copy-from-previous", map[string]any{"beneficiary": 1, "field": "name"}, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodDelete, "/api/v1/forms/"+id+"/beneficiaries/7", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/submit", nil, auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var submitted struct {
		Result service.SubmitResponse `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.True(t, submitted.Result.Valid)
	assert.Equal(t, "req-100", submitted.Result.ApplicationID)

	env.backend.mu.Lock()
	validated := append([]json.RawMessage(nil), env.backend.validated...)
	created := len(env.backend.created)
	headers := append([]string(nil), env.backend.authHeader...)
	env.backend.mu.Unlock()

	require.Len(t, validated, 1)
	assert.JSONEq(t, `[{"name":"Ann"},{"name":"Ann"}]`, string(validated[0]))
	assert.Equal(t, 1, created)
	for _, h := range headers {
		assert.Equal(t, "Bearer tok-1", h)
	}

	// editing after navigation is refused
	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/fields", map[string]any{"beneficiary": 0, "field": "name", "value": "Bob"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFormFlow_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	env.backend.invalid = true

	w := env.do(t, http.MethodPost, "/api/v1/forms?lang=he", map[string]string{"country_id": "thailand"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	id := decodeForm(t, w).Result.ID

	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/submit?lang=he", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var env2 struct {
		Result struct {
			Valid bool `json:"valid"`
			Form  struct {
				State         string `json:"state"`
				Dir           string `json:"dir"`
				Beneficiaries []struct {
					Fields []struct {
						Name  string `json:"name"`
						Error string `json:"error"`
					} `json:"fields"`
				} `json:"beneficiaries"`
			} `json:"form"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env2))
	assert.False(t, env2.Result.Valid)
	assert.Equal(t, "editing_with_errors", env2.Result.Form.State)
	assert.Equal(t, "rtl", env2.Result.Form.Dir)
	assert.Equal(t, "שם חובה", env2.Result.Form.Beneficiaries[0].Fields[0].Error)
}

func TestFormFlow_UploadFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "thailand"}, nil)
	id := decodeForm(t, w).Result.ID

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("beneficiary", "0"))
	require.NoError(t, mw.WriteField("field", "passport_scan"))
	part, err := mw.CreateFormFile("file", "passport.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/"+id+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(ClientIDHeader, "client-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeForm(t, rec)
	var value string
	for _, f := range got.Result.Beneficiaries[0].Fields {
		if f.Name == "passport_scan" {
			require.NoError(t, json.Unmarshal(f.Value, &value))
		}
	}
	assert.Equal(t, "https://files.test/x_passport.pdf", value)
	assert.Equal(t, []string{"passport_scan:passport.pdf"}, env.backend.uploads)
}

func TestUnknownSessionAndCountry(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/forms/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "atlantis"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Country not found")

	w = env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionsAreScopedToClient(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "thailand"}, nil)
	id := decodeForm(t, w).Result.ID

	w = env.do(t, http.MethodGet, "/api/v1/forms/"+id, nil, map[string]string{ClientIDHeader: "client-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplications_ListAndExport(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/applications", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":60401`)

	auth := map[string]string{"Authorization": "Bearer tok-1"}
	w = env.do(t, http.MethodGet, "/api/v1/applications", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status_color":"#10b981"`)

	w = env.do(t, http.MethodGet, "/api/v1/applications/export", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/vnd.openxmlformats"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestClientID_DoesNotReplayStoredToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/applications", nil, map[string]string{"Authorization": "Bearer tok-1"})
	require.Equal(t, http.StatusOK, w.Code)

	// same X-Client-ID, no Authorization: the remembered token must not be sent
	w = env.do(t, http.MethodGet, "/api/v1/applications", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.backend.mu.Lock()
	headers := append([]string(nil), env.backend.authHeader...)
	env.backend.mu.Unlock()
	require.Len(t, headers, 2)
	assert.Equal(t, "Bearer tok-1", headers[0])
	assert.Empty(t, headers[1])

	w = env.do(t, http.MethodGet, "/api/v1/preferences", nil, nil)
	assert.Contains(t, w.Body.String(), `"signed_in":true`)
}

func TestCountries(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/countries", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"thailand"`)
}

func TestPayment_SimulatedForSubmittedSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "thailand"}, nil)
	id := decodeForm(t, w).Result.ID
	w = env.do(t, http.MethodPost, "/api/v1/forms/"+id+"/submit", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/payments", map[string]string{"session_id": id, "currency": "ils"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Result payment.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, payment.OutcomeSuccess, res.Result.Outcome)
	assert.Equal(t, "req-100", res.Result.ApplicationID)
	assert.Equal(t, 180.0, res.Result.AmountILS)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/preferences", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"language":"en"`)

	w = env.do(t, http.MethodPut, "/api/v1/preferences", map[string]any{"language": "he", "agent_id": "agent-5"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"dir":"rtl"`)

	w = env.do(t, http.MethodPost, "/api/v1/preferences/theme/toggle", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"theme":"dark"`)

	w = env.do(t, http.MethodPut, "/api/v1/preferences", map[string]any{"theme": "purple"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// stored language now drives form rendering
	w = env.do(t, http.MethodPost, "/api/v1/forms", map[string]string{"country_id": "thailand"}, nil)
	assert.Equal(t, "rtl", decodeForm(t, w).Result.Dir)

	w = env.do(t, http.MethodGet, "/api/v1/preferences", nil, map[string]string{"Authorization": "Bearer tok-9"})
	assert.Contains(t, w.Body.String(), `"signed_in":true`)
	w = env.do(t, http.MethodPost, "/api/v1/auth/sign-out", nil, nil)
	assert.Contains(t, w.Body.String(), `"signed_in":false`)

	token, err := env.kv.Get(context.Background(), "prefs:client-1:auth-token")
	assert.ErrorIs(t, err, store.ErrMiss)
	assert.Empty(t, token)
}
