package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emperorhan/recycle-trace/internal/dashboard"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/traceability"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		rootFlags.output = outputText
		rootFlags.configFile = ""
		rootFlags.noConnect = false
		rootCmd.SetArgs(nil)
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRoot_RejectsUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, "-o", "yaml", "dashboard")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "yaml"`)
}

func TestCommands_ValidateArgumentsBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"token id not numeric", []string{"token", "collect", "abc"}, `token id must be a non-negative integer, got "abc"`},
		{"negative transfer id", []string{"transfer", "accept", "-1"}, "unknown shorthand flag"},
		{"bad recipient", []string{"token", "transfer", "3", "--to", "0x12"}, `invalid address "0x12"`},
		{"bad account", []string{"account", "approve", "not-an-address"}, `invalid address "not-an-address"`},
		{"bad role", []string{"account", "request-role", "AUDITOR"}, "invalid role name"},
		{"bad status", []string{"transfer", "list", "--status", "Lost"}, `unknown transfer status "Lost"`},
		{"missing name", []string{"token", "create"}, `required flag(s) "name" not set`},
		{"non-positive limit", []string{"journal", "--limit", "0"}, "--limit must be positive"},
		{"extra args", []string{"dashboard", "now"}, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	id, err := parseID("token", " 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = parseID("transfer", "4.5")
	assert.EqualError(t, err, `transfer id must be a non-negative integer, got "4.5"`)
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	addr, err := parseAddress(" " + strings.ToLower(alice.Hex()) + " ")
	require.NoError(t, err)
	assert.Equal(t, alice, addr)

	_, err = parseAddress("0xzz")
	assert.Error(t, err)
}

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.True(t, newLogger("debug", &buf).Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newLogger("bogus", &buf).Enabled(context.Background(), slog.LevelDebug))
}

func TestRender_JSON(t *testing.T) {
	t.Parallel()

	tokens := []model.Token{{ID: 1, Name: "PET", TotalSupply: 10, CurrentHolder: alice}}
	var buf bytes.Buffer
	require.NoError(t, render(&buf, outputJSON, tokens, nil))

	var got []model.Token
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, tokens, got)
}

func TestRender_TextTables(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := render(&buf, outputText, nil, func(w io.Writer) {
		writeTokens(w, []model.Token{{ID: 7, Name: "Glass", TotalSupply: 3, Stage: model.TokenStageCollected, CurrentHolder: bob, DateCreated: created}})
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID  NAME   SUPPLY  STAGE")
	assert.Contains(t, out, "Glass")
	assert.Contains(t, out, "Collected")
	assert.Contains(t, out, bob.Hex())

	buf.Reset()
	err = render(&buf, outputText, nil, func(w io.Writer) {
		writeTransfers(w, []model.Transfer{{ID: 2, TokenID: 7, From: alice, To: bob, Amount: 3, Status: model.TransferStatusPending}})
	})
	require.NoError(t, err)
	assert.Regexp(t, `2\s+7\s+`+alice.Hex()+`\s+`+bob.Hex()+`\s+3\s+Pending`, buf.String())
}

func TestWriteAccount(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeAccount(&buf, nil)
	assert.Equal(t, "No account connected.\n", buf.String())

	buf.Reset()
	writeAccount(&buf, &model.Account{Address: alice, Status: model.AccountStatusNone})
	assert.Contains(t, buf.String(), "Role:\t-")

	buf.Reset()
	writeAccount(&buf, &model.Account{Address: alice, Role: model.RoleRewardAuthority, Status: model.AccountStatusApproved})
	assert.Contains(t, buf.String(), "Role:\tReward Authority")
}

func TestWriteReceiptAndJournal(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	writeReceipt(&buf, "collect token", newReceiptOutput(&ledger.Receipt{TxHash: common.HexToHash("0x01"), BlockNumber: 9, GasUsed: 21000}))
	assert.Contains(t, buf.String(), "collect token confirmed")
	assert.Contains(t, buf.String(), "Block:\t9")

	assert.Equal(t, receiptOutput{}, newReceiptOutput(nil))

	buf.Reset()
	writeJournal(&buf, nil)
	assert.Equal(t, "Journal is empty or disabled.\n", buf.String())

	buf.Reset()
	writeJournal(&buf, []ledger.JournalEntry{{Contract: "Traceability", Method: "rewardToken", Status: ledger.TxReverted, Error: "not processed"}})
	assert.Contains(t, buf.String(), "rewardToken")
	assert.Contains(t, buf.String(), "not processed")
}

func TestWriteView(t *testing.T) {
	t.Parallel()

	t.Run("gated screen prints only the message", func(t *testing.T) {
		var buf bytes.Buffer
		writeView(&buf, &dashboard.View{Route: dashboard.Resolve(&model.Account{Address: alice, Role: model.RoleCitizen, Status: model.AccountStatusPending})})
		assert.Equal(t, "Your request is under review.\n", buf.String())
	})

	t.Run("citizen", func(t *testing.T) {
		acct := &model.Account{Address: alice, Role: model.RoleCitizen, Status: model.AccountStatusApproved}
		var buf bytes.Buffer
		writeView(&buf, &dashboard.View{
			Route: dashboard.Resolve(acct),
			Citizen: &dashboard.CitizenSummary{
				Total:      2,
				InProgress: 1,
				Rewarded:   1,
				Tokens:     []model.Token{{ID: 1, Name: "PET"}, {ID: 2, Name: "Can"}},
				Rewards: []traceability.RewardedToken{
					{RewardedToken: model.RewardedToken{TokenID: 2, Citizen: alice, Amount: 5, Authority: bob}},
				},
			},
		})
		out := buf.String()
		assert.True(t, strings.HasPrefix(out, "Citizen dashboard\n"))
		assert.Contains(t, out, "2 (1 in progress, 1 rewarded)")
		assert.Contains(t, out, "AUTHORITY")
	})

	t.Run("admin", func(t *testing.T) {
		acct := &model.Account{Address: alice, Role: model.RoleAdmin, Status: model.AccountStatusApproved}
		var buf bytes.Buffer
		writeView(&buf, &dashboard.View{
			Route: dashboard.Resolve(acct),
			Admin: &dashboard.AdminSummary{
				Total:    1,
				Pending:  1,
				Accounts: []model.Account{{Address: bob, Role: model.RoleProcessor, Status: model.AccountStatusPending}},
			},
		})
		assert.Regexp(t, `Pending:\s+1\n`, buf.String())
		assert.Contains(t, buf.String(), bob.Hex())
	})
}
