package visaapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"visakal-form/internal/domain"
)

func newTestServer(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tokens := TokenFunc(func(context.Context) string { return "tok-1" })
	return NewClient(srv.URL, 5*time.Second, tokens, zap.NewNop()), srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchFormSchema(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/form-schema/india", r.URL.Path)
		assert.Equal(t, "he", r.URL.Query().Get("language"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"country_id":"india","country_name":{"en":"India","he":"הודו"},
			"fields":[{"name":"a","field_type":"string"},{"name":"b","field_type":"hologram"}],
			"submit_button_text":{"en":"Go","he":"קדימה"}}`)
	})

	s, err := c.FetchFormSchema(context.Background(), "india", domain.LangHE)
	require.NoError(t, err)
	assert.Equal(t, "india", s.CountryID)
	require.Len(t, s.Fields, 1)
	assert.Equal(t, []domain.UnsupportedField{{Name: "b", FieldType: "hologram"}}, s.Unsupported)

	_, err = c.FetchFormSchema(context.Background(), "", domain.LangEN)
	assert.Error(t, err)
}

func TestValidateFormData(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/validate/india", r.URL.Path)
		var body []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body, 2)
		writeJSON(w, http.StatusOK, map[string]any{
			"valid":  false,
			"errors": []any{map[string]any{"name": map[string]any{"message": map[string]string{"en": "Required", "he": "חובה"}}}, map[string]any{}},
		})
	})

	res, err := c.ValidateFormData(context.Background(), "india",
		[]domain.Record{{"name": domain.StringValue("")}, {"name": domain.StringValue("x")}}, domain.LangEN)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "חובה", res.Errors[0]["name"].Message.He)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusBadRequest, `{"detail":"Country disabled","message":"ignored"}`, "Country disabled"},
		{"message", http.StatusInternalServerError, `{"message":"Boom"}`, "Boom"},
		{"status", http.StatusBadGateway, `not json`, "502 Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.GetApplication(context.Background(), "a1")
			var ae *APIError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tc.status, ae.StatusCode)
			assert.Equal(t, tc.want, ae.Message)
		})
	}
}

func TestUnreachable(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewClient("http://127.0.0.1:1", time.Second, nil, zap.New(core))
	_, err := c.FetchCountries(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)

	entries := logs.FilterMessage("Failed to call visa API").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
}

func TestUploadAndDeleteFile(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/upload-file":
			assert.Equal(t, "passport", r.URL.Query().Get("field_name"))
			assert.Equal(t, "1", r.URL.Query().Get("beneficiary_id"))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			b, _ := io.ReadAll(f)
			assert.Equal(t, "%PDF", string(b))
			assert.Equal(t, "p.pdf", hdr.Filename)
			writeJSON(w, http.StatusOK, domain.UploadedFile{URL: "https://b/x_p.pdf", FieldName: "passport", BeneficiaryID: "1", Filename: "p.pdf"})
		case "/api/delete-file":
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "https://b/x_p.pdf", r.URL.Query().Get("file_url"))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	up, err := c.UploadFile(context.Background(), domain.FileUpload{
		FieldName: "passport", BeneficiaryID: "1", Filename: "p.pdf", ContentType: "application/pdf", Content: []byte("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://b/x_p.pdf", up.URL)
	require.NoError(t, c.DeleteFile(context.Background(), up.URL))
}

func TestApplicationsAndPricing(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/applications":
			var in domain.CreateApplicationRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "agent-1", in.AgentID)
			writeJSON(w, http.StatusOK, domain.Application{ID: "app-1", CountryID: in.CountryID, Status: domain.StatusPendingPayment})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/applications/app-1/pricing":
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "p-1", in["pricing_id"])
			writeJSON(w, http.StatusOK, domain.Application{ID: "app-1"})
		case r.Method == http.MethodPatch && r.URL.Path == "/api/applications/app-1/status":
			writeJSON(w, http.StatusOK, domain.Application{ID: "app-1", Status: domain.StatusPaymentReceived})
		case r.Method == http.MethodGet && r.URL.Path == "/api/pricing/country/india":
			writeJSON(w, http.StatusOK, []domain.Pricing{{ID: "p-1", CountryID: "india", PriceILS: 200, PriceUSD: 55}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/pricing/p-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	app, err := c.CreateApplication(ctx, domain.CreateApplicationRequest{CountryID: "india", AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, "app-1", app.ID)

	_, err = c.UpdateApplicationPricing(ctx, "app-1", "p-1")
	require.NoError(t, err)

	app, err = c.UpdateApplicationStatus(ctx, "app-1", domain.StatusPaymentReceived)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaymentReceived, app.Status)

	plans, err := c.ListPricing(ctx, "india")
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, 200.0, plans[0].PriceILS)

	require.NoError(t, c.DeletePricing(ctx, "p-1"))
}

func TestCountriesIsUnauthenticated(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, domain.CountriesResponse{Available: []domain.Country{{ID: "india", Enabled: true}}})
	})
	out, err := c.FetchCountries(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.Available, 1)
}
