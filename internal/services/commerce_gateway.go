// internal/services/commerce_gateway.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

const commerceAPIVersion = "2018-03-22"

// CommerceGateway creates hosted crypto checkout charges on a Coinbase
// Commerce compatible API.
type CommerceGateway struct {
	config config.PaymentConfig
	client *http.Client
}

type commerceChargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  commerceMoney     `json:"local_price"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
}

type commerceMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type commerceCharge struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	HostedURL string            `json:"hosted_url"`
	Metadata  map[string]string `json:"metadata"`
}

type commerceChargeResponse struct {
	Data commerceCharge `json:"data"`
}

type commerceWebhook struct {
	ID    string `json:"id"`
	Event struct {
		ID   string         `json:"id"`
		Type string         `json:"type"`
		Data commerceCharge `json:"data"`
	} `json:"event"`
}

// NewCommerceGateway uses client for API calls, or a default client bounded
// by PAYMENT_TIMEOUT when client is nil.
func NewCommerceGateway(cfg config.PaymentConfig, client *http.Client) *CommerceGateway {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &CommerceGateway{config: cfg, client: client}
}

func (g *CommerceGateway) Name() string { return "commerce" }

func (g *CommerceGateway) SignatureHeader() string { return "X-CC-Webhook-Signature" }

func (g *CommerceGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error) {
	metadata := map[string]string{"charge_id": req.ChargeID.String()}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	body, err := json.Marshal(commerceChargeRequest{
		Name:        req.Name,
		Description: req.Description,
		PricingType: "fixed_price",
		LocalPrice: commerceMoney{
			Amount:   req.Amount.StringFixed(2),
			Currency: strings.ToUpper(req.Currency),
		},
		Metadata:    metadata,
		RedirectURL: g.config.SuccessURL,
		CancelURL:   g.config.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.config.CommerceAPIURL, "/")+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-CC-Api-Key", g.config.CommerceAPIKey)
	httpReq.Header.Set("X-CC-Version", commerceAPIVersion)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read charge response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("charge request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded commerceChargeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	if decoded.Data.ID == "" || decoded.Data.HostedURL == "" {
		return nil, fmt.Errorf("charge response is missing id or hosted_url")
	}

	return &ProviderCharge{
		ProviderChargeID: decoded.Data.ID,
		HostedURL:        decoded.Data.HostedURL,
	}, nil
}

func (g *CommerceGateway) VerifySignature(rawBody []byte, signature string) bool {
	return utils.VerifyHMACSHA256(g.config.CommerceWebhookKey, rawBody, signature)
}

func (g *CommerceGateway) ParseEvent(rawBody []byte) (*ProviderEvent, error) {
	return parseCommerceEvent(rawBody)
}

func parseCommerceEvent(rawBody []byte) (*ProviderEvent, error) {
	var payload commerceWebhook
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	eventID := payload.Event.ID
	if eventID == "" {
		eventID = payload.ID
	}
	if eventID == "" || payload.Event.Type == "" {
		return nil, fmt.Errorf("webhook payload is missing event id or type")
	}

	kind := EventKindUnknown
	switch payload.Event.Type {
	case "charge:confirmed", "charge:resolved":
		kind = EventKindConfirmed
	case "charge:failed":
		kind = EventKindFailed
	case "charge:delayed":
		kind = EventKindDelayed
	}

	return &ProviderEvent{
		ID:               eventID,
		Kind:             kind,
		ProviderChargeID: payload.Event.Data.ID,
		RawType:          payload.Event.Type,
	}, nil
}
