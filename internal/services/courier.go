package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bechedin/internal/config"
	"bechedin/internal/escrow"
)

// CourierService wraps the delivery provider's merchant API. Outbound its
// only job is creating a parcel for a tracking handle; pickup and delivery
// come back as webhooks the escrow engine consumes.
type CourierService struct {
	BaseURL string
	APIKey  string

	client *http.Client
}

func NewCourierService(cfg config.Config) *CourierService {
	return &CourierService{
		BaseURL: cfg.CourierBaseURL,
		APIKey:  cfg.CourierAPIKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type createParcelRequest struct {
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	Address        string `json:"recipient_address"`
	Reference      string `json:"merchant_order_id"`
}

type createParcelResponse struct {
	ConsignmentID string `json:"consignment_id"`
	Message       string `json:"message"`
}

// CreateParcel books a pickup with the courier and returns the consignment
// id used as the transaction's tracking handle.
func (cs *CourierService) CreateParcel(ctx context.Context, recipientName, recipientPhone, address, reference string) (string, error) {
	payload := createParcelRequest{
		RecipientName:  recipientName,
		RecipientPhone: recipientPhone,
		Address:        address,
		Reference:      reference,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parcel request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cs.BaseURL+"/aladdin/api/v1/orders", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cs.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := cs.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("courier call failed: %v: %w", err, escrow.ErrGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("courier returned HTTP %d: %w", resp.StatusCode, escrow.ErrGateway)
	}

	var result createParcelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode courier response: %v: %w", err, escrow.ErrGateway)
	}
	if result.ConsignmentID == "" {
		return "", fmt.Errorf("courier rejected parcel: %s: %w", result.Message, escrow.ErrGateway)
	}
	return result.ConsignmentID, nil
}
