package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenHistoryEntry is one CustodyChanged emission for a token.
type TokenHistoryEntry struct {
	TokenID        uint64         `json:"token_id"`
	PreviousHolder common.Address `json:"previous_holder"`
	NewHolder      common.Address `json:"new_holder"`
	Action         TokenStage     `json:"action"`
	Timestamp      time.Time      `json:"timestamp"`
	TxHash         common.Hash    `json:"tx_hash"`
	BlockNumber    uint64         `json:"block_number"`
	LogIndex       uint           `json:"log_index"`
}

// CollectedToken is a TokenCollected emission.
type CollectedToken struct {
	TokenID     uint64         `json:"token_id"`
	Transporter common.Address `json:"transporter"`
}

// ProcessedToken is a TokenProcessed emission.
type ProcessedToken struct {
	TokenID   uint64         `json:"token_id"`
	Processor common.Address `json:"processor"`
}

// RewardedToken is a TokenRewarded emission. Unlike the other stage events it
// carries enough to be displayed without the token record.
type RewardedToken struct {
	TokenID        uint64         `json:"token_id"`
	Citizen        common.Address `json:"citizen"`
	Amount         uint64         `json:"amount"`
	Authority      common.Address `json:"authority"`
	RewardFeatures string         `json:"reward_features"`
}
