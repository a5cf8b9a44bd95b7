package model

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleNameToID_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, r := range Roles {
		got, ok := RoleFromID(RoleNameToID(string(r)))
		require.True(t, ok, "role %s", r)
		assert.Equal(t, r, got)
	}
}

func TestRoleNameToID_IsKeccakOfName(t *testing.T) {
	t.Parallel()

	want := common.BytesToHash(crypto.Keccak256([]byte("CITIZEN")))
	assert.Equal(t, want, RoleNameToID("CITIZEN"))
	assert.Equal(t, want, RoleCitizen.ID())
}

func TestRoleFromID_Unknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   common.Hash
	}{
		{"zero hash", common.Hash{}},
		{"lowercase name", RoleNameToID("citizen")},
		{"unlisted role", RoleNameToID("AUDITOR")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := RoleFromID(tt.id)
			assert.False(t, ok)
		})
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole(" reward_authority ")
	require.NoError(t, err)
	assert.Equal(t, RoleRewardAuthority, r)
	assert.Equal(t, "Reward Authority", r.Label())

	_, err = ParseRole("AUDITOR")
	require.ErrorIs(t, err, ErrInvalidRole)
	assert.Contains(t, err.Error(), "invalid role name")
}

func TestAccountStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Pending", AccountStatusPending.String())
	assert.Equal(t, "Under review", AccountStatusPending.Label())
	assert.True(t, AccountStatusCanceled.Valid())
	assert.False(t, AccountStatus(5).Valid())
	assert.Equal(t, "AccountStatus(9)", AccountStatus(9).String())

	var s AccountStatus
	require.NoError(t, s.UnmarshalText([]byte("Approved")))
	assert.Equal(t, AccountStatusApproved, s)
	require.Error(t, s.UnmarshalText([]byte("Bogus")))
}

func TestAccountSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()

	acct := Account{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Role:    RoleProcessor,
		Status:  AccountStatusApproved,
	}
	raw, err := MarshalAccountSnapshot(acct)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"Approved"`)

	got, err := UnmarshalAccountSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, acct, *got)
}

func TestTransferStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseTransferStatus("pending")
	require.NoError(t, err)
	assert.Equal(t, TransferStatusPending, s)

	s, err = ParseTransferStatus("")
	require.NoError(t, err)
	assert.Equal(t, TransferStatusNone, s)

	_, err = ParseTransferStatus("lost")
	require.Error(t, err)

	assert.True(t, TransferStatusAccepted.Terminal())
	assert.True(t, TransferStatusRejected.Terminal())
	assert.False(t, TransferStatusPending.Terminal())
}

func TestNetworkForChainID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NetworkSepolia, NetworkForChainID(11155111))
	assert.Equal(t, NetworkHardhat, NetworkForChainID(31337))
	assert.Equal(t, Network("chain-424242"), NetworkForChainID(424242))
}

func TestTokenStage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Processed", TokenStageProcessed.String())
	assert.False(t, TokenStage(4).Valid())
	assert.Equal(t, uint64(1_700_000_000), uint64(FromUnixSeconds(1_700_000_000).Unix()))
}
