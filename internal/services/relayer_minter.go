// internal/services/relayer_minter.go
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
)

// RelayerMinter mints through an HTTP relayer that holds the backend wallet
// and submits transactions to the ticket contract.
type RelayerMinter struct {
	config config.BlockchainConfig
	client *http.Client
}

type relayerMintRequest struct {
	Contract       string `json:"contract,omitempty"`
	Network        string `json:"network"`
	From           string `json:"from,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	MintRequest
}

func NewRelayerMinter(cfg config.BlockchainConfig, client *http.Client) *RelayerMinter {
	if client == nil {
		// Per-call deadlines come from the caller's context.
		client = &http.Client{}
	}
	return &RelayerMinter{config: cfg, client: client}
}

func (m *RelayerMinter) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	body, err := json.Marshal(relayerMintRequest{
		Contract:       m.config.ContractAddress,
		Network:        m.config.Network,
		From:           m.config.BackendWallet,
		IdempotencyKey: req.TicketID.String(),
		MintRequest:    req,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode mint request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(m.config.RelayerURL, "/")+"/mint", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build mint request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.config.RelayerAPIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.config.RelayerAPIKey)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mint relayer request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read mint response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mint relayer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result MintResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode mint response: %w", err)
	}
	if result.TokenID == "" {
		return nil, fmt.Errorf("mint relayer response is missing token_id")
	}

	return &result, nil
}
