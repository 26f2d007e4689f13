// internal/services/minting.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// Minter issues one ERC-721 ticket token per call.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)
}

type MintRequest struct {
	TicketID    uuid.UUID `json:"ticket_id"`
	EventID     uuid.UUID `json:"event_id"`
	TierID      uuid.UUID `json:"tier_id"`
	Recipient   string    `json:"recipient"`
	Section     string    `json:"section"`
	Row         string    `json:"row"`
	Seat        string    `json:"seat"`
	MetadataURI string    `json:"metadata_uri"`
}

type MintResult struct {
	TokenID         string `json:"token_id"`
	TransactionHash string `json:"transaction_hash"`
}

// NewMinter builds the minter selected by MINTER.
func NewMinter(cfg *config.Config) (Minter, error) {
	switch cfg.Blockchain.Minter {
	case "relayer":
		return NewRelayerMinter(cfg.Blockchain, nil), nil
	case "simulated":
		return NewBlockchainService(cfg), nil
	default:
		return nil, fmt.Errorf("unknown minter %q", cfg.Blockchain.Minter)
	}
}
