package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bechedin/internal/config"
	"bechedin/internal/escrow"
)

// SSLCommerzService wraps the SSLCommerz hosted-checkout gateway. The
// gateway is treated as untrusted and unreliable: every call carries a
// bounded timeout and failures surface as escrow.ErrGateway so callers can
// retry with backoff.
type SSLCommerzService struct {
	StoreID       string
	StorePassword string
	BaseURL       string

	client *http.Client
}

func NewSSLCommerzService(cfg config.Config) *SSLCommerzService {
	return &SSLCommerzService{
		StoreID:       cfg.SSLCStoreID,
		StorePassword: cfg.SSLCStorePassword,
		BaseURL:       cfg.SSLCBaseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

// ReturnURLs are where the gateway sends the buyer's browser and its
// server-to-server IPN after checkout.
type ReturnURLs struct {
	Success string
	Fail    string
	Cancel  string
	IPN     string
}

type checkoutSessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

type validationResponse struct {
	Status    string `json:"status"`
	TranID    string `json:"tran_id"`
	ValID     string `json:"val_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	ValueA    string `json:"value_a"`
	RiskLevel string `json:"risk_level"`
}

// InitiateCheckout creates a hosted-checkout session for the transaction and
// returns the gateway page URL to redirect the buyer to. The transaction id
// rides in value_a so the IPN can find its way back.
func (s *SSLCommerzService) InitiateCheckout(ctx context.Context, tranID, txnID string, amount int64, productName string, urls ReturnURLs) (string, error) {
	form := url.Values{}
	form.Set("store_id", s.StoreID)
	form.Set("store_passwd", s.StorePassword)
	form.Set("total_amount", formatAmount(amount))
	form.Set("currency", "BDT")
	form.Set("tran_id", tranID)
	form.Set("success_url", urls.Success)
	form.Set("fail_url", urls.Fail)
	form.Set("cancel_url", urls.Cancel)
	form.Set("ipn_url", urls.IPN)
	form.Set("shipping_method", "NO")
	form.Set("product_name", productName)
	form.Set("product_category", "Marketplace")
	form.Set("product_profile", "general")
	form.Set("cus_name", "Buyer")
	form.Set("cus_email", "buyer@bechedin.com")
	form.Set("cus_add1", "Dhaka")
	form.Set("cus_city", "Dhaka")
	form.Set("cus_postcode", "1000")
	form.Set("cus_country", "Bangladesh")
	form.Set("cus_phone", "01700000000")
	form.Set("value_a", txnID)

	var result checkoutSessionResponse
	if err := s.postForm(ctx, "/gwprocess/v4/api.php", form, &result); err != nil {
		return "", err
	}
	if !strings.EqualFold(result.Status, "SUCCESS") || result.GatewayPageURL == "" {
		return "", fmt.Errorf("sslcommerz session rejected: %s: %w", result.FailedReason, escrow.ErrGateway)
	}
	return result.GatewayPageURL, nil
}

// ValidatePayment checks a val_id with the gateway's validation API and
// reports whether the charge is genuine. The transaction id the gateway
// echoes back in value_a is returned so IPN handlers never trust the raw
// request body alone.
func (s *SSLCommerzService) ValidatePayment(ctx context.Context, valID string) (bool, string, error) {
	endpoint := fmt.Sprintf("/validator/api/validationserverAPI.php?val_id=%s&store_id=%s&store_passwd=%s&format=json",
		url.QueryEscape(valID), url.QueryEscape(s.StoreID), url.QueryEscape(s.StorePassword))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+endpoint, nil)
	if err != nil {
		return false, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("sslcommerz validation call failed: %v: %w", err, escrow.ErrGateway)
	}
	defer resp.Body.Close()

	var result validationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, "", fmt.Errorf("failed to decode validation response: %v: %w", err, escrow.ErrGateway)
	}

	valid := strings.EqualFold(result.Status, "VALID") || strings.EqualFold(result.Status, "VALIDATED")
	return valid, result.ValueA, nil
}

func (s *SSLCommerzService) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sslcommerz call failed: %v: %w", err, escrow.ErrGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sslcommerz returned HTTP %d: %w", resp.StatusCode, escrow.ErrGateway)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %v: %w", err, escrow.ErrGateway)
	}
	return nil
}

// formatAmount renders minor currency units as the decimal string the
// gateway expects, e.g. 5000 -> "50.00".
func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
