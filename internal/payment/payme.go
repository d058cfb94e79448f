package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrPayMeNotConfigured = errors.New("PayMe is not configured")

// PayMeParams one multi-checkout sale
type PayMeParams struct {
	Amount      float64
	Currency    string // "ILS" | "USD"
	Reference   string
	SuccessURL  string
	CancelURL   string
	Description string
	BuyerEmail  string
}

type payMeSaleRequest struct {
	SellerPaymeID        string `json:"seller_payme_id"`
	SalePrice            int64  `json:"sale_price"`
	Currency             string `json:"currency"`
	Installments         int    `json:"installments"`
	TransactionID        string `json:"transaction_id"`
	SaleSendNotification bool   `json:"sale_send_notification"`
	SaleCallbackURL      string `json:"sale_callback_url"`
	SaleReturnURL        string `json:"sale_return_url"`
	ProductName          string `json:"product_name,omitempty"`
	SalePaymentMethod    string `json:"sale_payment_method"`
	BuyerEmail           string `json:"buyer_email,omitempty"`
}

type payMeSaleResponse struct {
	SaleURL            string `json:"sale_url"`
	StatusCode         int    `json:"status_code"`
	StatusErrorDetails string `json:"status_error_details"`
	StatusErrorCode    int    `json:"status_error_code"`
}

// PayMeClient direct PayMe generate-sale client
type PayMeClient struct {
	httpClient *resty.Client
	endpoint   string
	merchantID string
	secretKey  string
	logger     *zap.Logger
}

func NewPayMeClient(baseURL, merchantID, secretKey, checkoutPath string, logger *zap.Logger) *PayMeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkoutPath == "" {
		checkoutPath = "/generate-sale/"
	}
	if !strings.HasPrefix(checkoutPath, "/") {
		checkoutPath = "/" + checkoutPath
	}
	endpoint := ""
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + checkoutPath
	}
	return &PayMeClient{
		httpClient: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("Content-Type", "application/json"),
		endpoint:   endpoint,
		merchantID: merchantID,
		secretKey:  secretKey,
		logger:     logger,
	}
}

// Available reports whether base URL, merchant id and secret key are all set.
func (c *PayMeClient) Available() bool {
	return c.endpoint != "" && c.merchantID != "" && c.secretKey != ""
}

// CreatePayment creates a sale and returns the hosted payment page URL.
func (c *PayMeClient) CreatePayment(ctx context.Context, p PayMeParams) (string, error) {
	if !c.Available() {
		return "", ErrPayMeNotConfigured
	}
	body := payMeSaleRequest{
		SellerPaymeID:        c.secretKey,
		SalePrice:            int64(math.Round(p.Amount * 100)),
		Currency:             p.Currency,
		Installments:         1,
		TransactionID:        p.Reference,
		SaleSendNotification: true,
		SaleCallbackURL:      "https://www.payme.io",
		SaleReturnURL:        "https://www.payme.io",
		ProductName:          p.Description,
		SalePaymentMethod:    "multi",
		BuyerEmail:           p.BuyerEmail,
	}

	var out payMeSaleResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(c.secretKey).
		SetBody(body).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		c.logger.Error("PayMe API call failed", zap.Error(err))
		return "", fmt.Errorf("failed to call PayMe API: %w", err)
	}
	if resp.IsError() {
		text := strings.TrimSpace(resp.String())
		if text == "" {
			text = resp.Status()
		}
		c.logger.Error("PayMe API returned error", zap.Int("status_code", resp.StatusCode()), zap.String("body", text))
		return "", fmt.Errorf("PayMe API error (%d): %s", resp.StatusCode(), text)
	}
	if out.StatusCode == 1 {
		c.logger.Error("PayMe sale rejected",
			zap.Int("status_error_code", out.StatusErrorCode),
			zap.String("details", out.StatusErrorDetails),
		)
		return "", fmt.Errorf("request failed with status %d: %s", out.StatusErrorCode, out.StatusErrorDetails)
	}
	if out.SaleURL == "" {
		return "", errors.New("PayMe did not return a payment URL")
	}

	c.logger.Info("PayMe sale created",
		zap.String("reference", p.Reference),
		zap.Int64("sale_price", body.SalePrice),
		zap.String("currency", p.Currency),
	)
	return out.SaleURL, nil
}
