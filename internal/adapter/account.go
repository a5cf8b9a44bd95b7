package adapter

import (
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/ethereum/go-ethereum/common"
)

const accountRecord = "account"

// NormalizeAccount decodes an (address, role id, status) tuple. The zero role
// id is an account that never held a role and decodes with an empty Role. Any
// other unrecognized id, or an out-of-range status, is a *DecodeError.
func NormalizeAccount(raw any) (model.Account, error) {
	tuple, err := fields(raw, accountRecord, 3)
	if err != nil {
		return model.Account{}, err
	}
	return decodeAccount(tuple)
}

// DecodeAccountTuple decodes the flat return values of getAccountInfo.
func DecodeAccountTuple(values []any) (model.Account, error) {
	return NormalizeAccount(values)
}

// NormalizeAccounts decodes getAllAccounts, dropping entries that fail or
// carry no role.
func NormalizeAccounts(raw any, onDrop OnDrop) ([]model.Account, error) {
	return decodeList(raw, accountRecord, func(v any) (model.Account, error) {
		acct, err := NormalizeAccount(v)
		if err == nil && !acct.Role.Assigned() {
			return model.Account{}, &DecodeError{Record: accountRecord, Field: "role", Err: ErrUnknownRole}
		}
		return acct, err
	}, onDrop)
}

func decodeAccount(tuple []any) (model.Account, error) {
	addr, err := address(accountRecord, "address", tuple[0])
	if err != nil {
		return model.Account{}, err
	}
	roleID, err := bytes32(accountRecord, "role", tuple[1])
	if err != nil {
		return model.Account{}, err
	}
	var role model.Role
	if roleID != (common.Hash{}) {
		r, ok := model.RoleFromID(roleID)
		if !ok {
			return model.Account{}, &DecodeError{Record: accountRecord, Field: "role", Err: ErrUnknownRole}
		}
		role = r
	}
	status, err := enum(accountRecord, "status", tuple[2], func(v uint8) bool {
		return model.AccountStatus(v).Valid()
	})
	if err != nil {
		return model.Account{}, err
	}
	return model.Account{
		Address: addr,
		Role:    role,
		Status:  model.AccountStatus(status),
	}, nil
}
