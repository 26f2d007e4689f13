// internal/services/blockchain_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// BlockchainService simulates the ticket contract for development. Token ids
// and transaction hashes are derived from the mint record, so minting the
// same ticket twice yields the same token.
type BlockchainService struct {
	config *config.Config
	now    func() time.Time
}

type BlockchainRecord struct {
	Hash      string                 `json:"hash"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewBlockchainService(config *config.Config) *BlockchainService {
	return &BlockchainService{
		config: config,
		now:    time.Now,
	}
}

func (s *BlockchainService) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recordData := map[string]interface{}{
		"type":      "ticket_mint",
		"ticket_id": req.TicketID.String(),
		"event_id":  req.EventID.String(),
		"tier_id":   req.TierID.String(),
		"recipient": req.Recipient,
		"seat":      req.Section + "-" + req.Row + "-" + req.Seat,
		"network":   s.config.Blockchain.Network,
	}

	record := BlockchainRecord{
		Hash:      s.generateHash(recordData),
		Timestamp: s.now().UTC(),
		Data:      recordData,
	}

	tokenID := s.tokenIDFromHash(record.Hash)

	logrus.WithFields(logrus.Fields{
		"ticket_id": req.TicketID,
		"token_id":  tokenID,
		"tx_hash":   record.Hash,
	}).Info("Simulated ticket mint")

	return &MintResult{
		TokenID:         tokenID,
		TransactionHash: "0x" + record.Hash,
	}, nil
}

func (s *BlockchainService) generateHash(data map[string]interface{}) string {
	// encoding/json sorts map keys, so equal records hash equally
	payload, _ := json.Marshal(data)
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// tokenIDFromHash keeps the first 8 bytes so ids stay readable.
func (s *BlockchainService) tokenIDFromHash(hash string) string {
	raw, _ := hex.DecodeString(hash[:16])
	return new(big.Int).SetBytes(raw).String()
}
