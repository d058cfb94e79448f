package domain

// Application statuses used by the client flow
const (
	StatusPending         = "pending"
	StatusSubmitted       = "submitted"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusPendingPayment  = "pending_payment"
	StatusPendingApproval = "pending_approval"
	StatusPaymentReceived = "payment_received"
)

var statusColors = map[string]string{
	StatusPending:         "#f59e0b",
	StatusSubmitted:       "#3b82f6",
	StatusApproved:        "#10b981",
	StatusRejected:        "#ef4444",
	StatusPendingPayment:  "#f59e0b",
	StatusPendingApproval: "#3b82f6",
}

// DefaultStatusColor badge colour for statuses without an entry
const DefaultStatusColor = "#64748b"

// StatusColor badge colour for an application status
func StatusColor(status string) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return DefaultStatusColor
}

type Beneficiary struct {
	ID        string `json:"id"`
	FormData  Record `json:"form_data"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type Application struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	CountryID       string         `json:"country_id"`
	CountryName     TranslatedText `json:"country_name"`
	Status          string         `json:"status"`
	SubmittedAt     *string        `json:"submitted_at"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	Notes           *string        `json:"notes,omitempty"`
	IsClientRequest bool           `json:"is_client_request,omitempty"`
	ClientEmail     *string        `json:"client_email,omitempty"`
	Beneficiaries   []Beneficiary  `json:"beneficiaries"`
}

// Records extracts the beneficiaries' form data in order.
func (a *Application) Records() []Record {
	out := make([]Record, 0, len(a.Beneficiaries))
	for _, b := range a.Beneficiaries {
		if b.FormData == nil {
			out = append(out, Record{})
			continue
		}
		out = append(out, b.FormData.Clone())
	}
	return out
}

type CreateApplicationRequest struct {
	CountryID     string   `json:"country_id"`
	Beneficiaries []Record `json:"beneficiaries"`
	AgentID       string   `json:"agent_id,omitempty"`
}

type Country struct {
	ID          string         `json:"id"`
	Name        TranslatedText `json:"name"`
	FlagSVGLink string         `json:"flag_svg_link"`
	Enabled     bool           `json:"enabled"`
}

type CountriesResponse struct {
	Available  []Country `json:"available"`
	ComingSoon []Country `json:"coming_soon"`
}

type Pricing struct {
	ID          string  `json:"id"`
	CountryID   string  `json:"country_id"`
	PriceUSD    float64 `json:"price_usd"`
	PriceILS    float64 `json:"price_ils"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CreatedAt   *string `json:"created_at,omitempty"`
	UpdatedAt   *string `json:"updated_at,omitempty"`
}

type CreatePricingRequest struct {
	CountryID   string  `json:"country_id"`
	PriceUSD    float64 `json:"price_usd"`
	PriceILS    float64 `json:"price_ils"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

type UpdatePricingRequest struct {
	CountryID   *string  `json:"country_id,omitempty"`
	PriceUSD    *float64 `json:"price_usd,omitempty"`
	PriceILS    *float64 `json:"price_ils,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Picture   string `json:"picture,omitempty"`
	Role      string `json:"role,omitempty"`
	CreatedAt string `json:"created_at"`
}

// UploadedFile reference returned by the storage endpoint
type UploadedFile struct {
	URL           string `json:"url"`
	FieldName     string `json:"field_name"`
	BeneficiaryID string `json:"beneficiary_id"`
	Filename      string `json:"filename"`
}

// FileUpload one selected file on its way to storage
type FileUpload struct {
	FieldName     string
	BeneficiaryID string
	Filename      string
	ContentType   string
	Content       []byte
}
