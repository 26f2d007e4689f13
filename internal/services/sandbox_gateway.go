// internal/services/sandbox_gateway.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// SandboxGateway is a local provider for development. Charges are created
// without any network call and webhooks use the Commerce payload shape,
// signed with SANDBOX_WEBHOOK_SECRET.
type SandboxGateway struct {
	secret  string
	baseURL string
}

func NewSandboxGateway(cfg config.PaymentConfig, frontendURL string) *SandboxGateway {
	return &SandboxGateway{
		secret:  cfg.SandboxWebhookKey,
		baseURL: strings.TrimRight(frontendURL, "/"),
	}
}

func (g *SandboxGateway) Name() string { return "sandbox" }

func (g *SandboxGateway) SignatureHeader() string { return "X-Sandbox-Signature" }

func (g *SandboxGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	suffix, err := utils.GenerateRandomString(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate sandbox charge id: %w", err)
	}
	id := "sbx_" + suffix

	return &ProviderCharge{
		ProviderChargeID: id,
		HostedURL:        fmt.Sprintf("%s/checkout/sandbox/%s", g.baseURL, id),
	}, nil
}

func (g *SandboxGateway) VerifySignature(rawBody []byte, signature string) bool {
	return utils.VerifyHMACSHA256(g.secret, rawBody, signature)
}

func (g *SandboxGateway) ParseEvent(rawBody []byte) (*ProviderEvent, error) {
	return parseCommerceEvent(rawBody)
}
