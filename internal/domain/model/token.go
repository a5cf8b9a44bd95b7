package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenStage is the lifecycle position of a recyclable token. Transitions are
// enforced by the traceability contract; this package only names them.
type TokenStage uint8

const (
	TokenStageCreated TokenStage = iota
	TokenStageCollected
	TokenStageProcessed
	TokenStageRewarded
)

var tokenStageNames = [...]string{"Created", "Collected", "Processed", "Rewarded"}

func (s TokenStage) Valid() bool {
	return int(s) < len(tokenStageNames)
}

func (s TokenStage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("TokenStage(%d)", uint8(s))
	}
	return tokenStageNames[s]
}

func (s TokenStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TokenStage) UnmarshalText(text []byte) error {
	for i, name := range tokenStageNames {
		if name == string(text) {
			*s = TokenStage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown token stage %q", string(text))
}

type Token struct {
	ID                uint64         `json:"id"`
	Creator           common.Address `json:"creator"`
	CurrentHolder     common.Address `json:"current_holder"`
	Name              string         `json:"name"`
	TotalSupply       uint64         `json:"total_supply"`
	CitizenFeatures   string         `json:"citizen_features"`
	ProcessorFeatures string         `json:"processor_features"`
	DateCreated       time.Time      `json:"date_created"`
	Stage             TokenStage     `json:"stage"`
}

// HeldBy reports whether addr is the token's current holder.
func (t Token) HeldBy(addr common.Address) bool {
	return t.CurrentHolder == addr
}

// DisplayTimeLayout is the layout used for human-facing timestamps.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// DisplayTime renders an on-chain timestamp in local time.
func DisplayTime(t time.Time) string {
	return t.Local().Format(DisplayTimeLayout)
}

// FromUnixSeconds converts a contract timestamp (epoch seconds) to time.Time.
func FromUnixSeconds(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
