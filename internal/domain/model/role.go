package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role is the canonical name of an access-manager role.
type Role string

const (
	RoleAdmin           Role = "ADMIN"
	RoleCitizen         Role = "CITIZEN"
	RoleTransporter     Role = "TRANSPORTER"
	RoleProcessor       Role = "PROCESSOR"
	RoleRewardAuthority Role = "REWARD_AUTHORITY"
)

// ErrInvalidRole rejects a role name outside Roles.
var ErrInvalidRole = errors.New("invalid role name")

// Roles lists every role the access manager knows about.
var Roles = []Role{
	RoleAdmin,
	RoleCitizen,
	RoleTransporter,
	RoleProcessor,
	RoleRewardAuthority,
}

var roleLabels = map[Role]string{
	RoleAdmin:           "Admin",
	RoleCitizen:         "Citizen",
	RoleTransporter:     "Transporter",
	RoleProcessor:       "Processor",
	RoleRewardAuthority: "Reward Authority",
}

// roleByID is the inverse of RoleNameToID over Roles.
var roleByID = func() map[common.Hash]Role {
	m := make(map[common.Hash]Role, len(Roles))
	for _, r := range Roles {
		m[RoleNameToID(string(r))] = r
	}
	return m
}()

// RoleNameToID derives the on-chain role identifier: keccak256 of the UTF-8 name.
func RoleNameToID(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// RoleFromID maps an on-chain identifier back to its role. Identifiers outside
// the known set report false and must be treated as no access.
func RoleFromID(id common.Hash) (Role, bool) {
	r, ok := roleByID[id]
	return r, ok
}

// ParseRole accepts a role name in any case ("citizen", "Reward_Authority").
func ParseRole(name string) (Role, error) {
	candidate := Role(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := roleLabels[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, name)
	}
	return candidate, nil
}

// Assigned reports whether r names a role. The empty Role is an account that
// has never been granted one.
func (r Role) Assigned() bool {
	_, ok := roleLabels[r]
	return ok
}

// ID returns the on-chain identifier for r.
func (r Role) ID() common.Hash {
	return RoleNameToID(string(r))
}

func (r Role) String() string {
	return string(r)
}

// Label is the human-readable role name.
func (r Role) Label() string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return "Unknown"
}
