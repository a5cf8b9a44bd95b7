package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransferStatus mirrors the traceability contract's transfer status enum.
// None doubles as "any status" when filtering.
type TransferStatus uint8

const (
	TransferStatusNone TransferStatus = iota
	TransferStatusPending
	TransferStatusAccepted
	TransferStatusRejected
)

var transferStatusNames = [...]string{"None", "Pending", "Accepted", "Rejected"}

func (s TransferStatus) Valid() bool {
	return int(s) < len(transferStatusNames)
}

func (s TransferStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("TransferStatus(%d)", uint8(s))
	}
	return transferStatusNames[s]
}

// Terminal reports whether no further transition is possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferStatusAccepted || s == TransferStatusRejected
}

func (s TransferStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TransferStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTransferStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseTransferStatus accepts the status name case-insensitively; "" is None.
func ParseTransferStatus(name string) (TransferStatus, error) {
	if name == "" {
		return TransferStatusNone, nil
	}
	for i, n := range transferStatusNames {
		if strings.EqualFold(n, name) {
			return TransferStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown transfer status %q", name)
}

// Transfer is a proposed custody change of part of a token's supply.
type Transfer struct {
	ID        uint64         `json:"id"`
	TokenID   uint64         `json:"token_id"`
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Amount    uint64         `json:"amount"`
	Status    TransferStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}
