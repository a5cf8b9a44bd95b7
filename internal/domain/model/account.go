package model

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// AccountStatus mirrors the access manager's account status enum.
type AccountStatus uint8

const (
	AccountStatusNone AccountStatus = iota
	AccountStatusPending
	AccountStatusApproved
	AccountStatusRejected
	AccountStatusCanceled
)

var accountStatusNames = [...]string{"None", "Pending", "Approved", "Rejected", "Canceled"}

var accountStatusLabels = [...]string{
	"No request",
	"Under review",
	"Approved",
	"Rejected",
	"Canceled",
}

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	return int(s) < len(accountStatusNames)
}

func (s AccountStatus) String() string {
	if !s.Valid() {
		return fmt.Sprintf("AccountStatus(%d)", uint8(s))
	}
	return accountStatusNames[s]
}

// Label is the dashboard wording for the status.
func (s AccountStatus) Label() string {
	if !s.Valid() {
		return "Unknown"
	}
	return accountStatusLabels[s]
}

func (s AccountStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *AccountStatus) UnmarshalText(text []byte) error {
	for i, name := range accountStatusNames {
		if name == string(text) {
			*s = AccountStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown account status %q", string(text))
}

// Account is the UI-facing projection of an access-manager record.
type Account struct {
	Address common.Address `json:"address"`
	Role    Role           `json:"role"`
	Status  AccountStatus  `json:"status"`
}

// MarshalAccountSnapshot encodes an account for the session store.
func MarshalAccountSnapshot(a Account) ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalAccountSnapshot decodes a snapshot written by MarshalAccountSnapshot.
func UnmarshalAccountSnapshot(data []byte) (*Account, error) {
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account snapshot: %w", err)
	}
	return &a, nil
}
