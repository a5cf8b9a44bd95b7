package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/emperorhan/recycle-trace/internal/dashboard"
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/traceability"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// render writes v as indented JSON, or through text as aligned columns.
func render(w io.Writer, format string, v any, text func(w io.Writer)) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func writeAccount(w io.Writer, acct *model.Account) {
	if acct == nil {
		fmt.Fprintln(w, "No account connected.")
		return
	}
	role := "-"
	if acct.Role.Assigned() {
		role = acct.Role.Label()
	}
	fmt.Fprintf(w, "Address:\t%s\n", acct.Address.Hex())
	fmt.Fprintf(w, "Role:\t%s\n", role)
	fmt.Fprintf(w, "Status:\t%s\n", acct.Status.Label())
}

func writeAccounts(w io.Writer, accounts []model.Account) {
	fmt.Fprintln(w, "ADDRESS\tROLE\tSTATUS")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Address.Hex(), a.Role.Label(), a.Status.Label())
	}
}

func writeTokens(w io.Writer, tokens []model.Token) {
	fmt.Fprintln(w, "ID\tNAME\tSUPPLY\tSTAGE\tHOLDER\tCREATED")
	for _, t := range tokens {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			t.ID, t.Name, t.TotalSupply, t.Stage, t.CurrentHolder.Hex(), model.DisplayTime(t.DateCreated))
	}
}

func writeTransfers(w io.Writer, transfers []model.Transfer) {
	fmt.Fprintln(w, "ID\tTOKEN\tFROM\tTO\tAMOUNT\tSTATUS\tTIME")
	for _, t := range transfers {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\t%s\n",
			t.ID, t.TokenID, t.From.Hex(), t.To.Hex(), t.Amount, t.Status, model.DisplayTime(t.Timestamp))
	}
}

func writeHistory(w io.Writer, entries []model.TokenHistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No custody changes recorded.")
		return
	}
	fmt.Fprintln(w, "TIME\tACTION\tFROM\tTO\tBLOCK\tTX")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			model.DisplayTime(e.Timestamp), e.Action, e.PreviousHolder.Hex(), e.NewHolder.Hex(), e.BlockNumber, e.TxHash.Hex())
	}
}

func writeRewarded(w io.Writer, rewards []traceability.RewardedToken) {
	fmt.Fprintln(w, "TOKEN\tNAME\tCITIZEN\tAMOUNT\tAUTHORITY\tFEATURES")
	for _, r := range rewards {
		name := "?"
		if r.Token != nil {
			name = r.Token.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
			r.TokenID, name, r.Citizen.Hex(), r.Amount, r.Authority.Hex(), r.RewardFeatures)
	}
}

type receiptOutput struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

func newReceiptOutput(r *ledger.Receipt) receiptOutput {
	if r == nil {
		return receiptOutput{}
	}
	return receiptOutput{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber, GasUsed: r.GasUsed}
}

func writeReceipt(w io.Writer, action string, r receiptOutput) {
	fmt.Fprintf(w, "%s confirmed\n", action)
	fmt.Fprintf(w, "Tx:\t%s\n", r.TxHash)
	fmt.Fprintf(w, "Block:\t%d\n", r.BlockNumber)
	fmt.Fprintf(w, "Gas used:\t%d\n", r.GasUsed)
}

func writeJournal(w io.Writer, entries []ledger.JournalEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Journal is empty or disabled.")
		return
	}
	fmt.Fprintln(w, "TIME\tCONTRACT\tMETHOD\tSTATUS\tTX\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			model.DisplayTime(e.CreatedAt), e.Contract, e.Method, e.Status, e.TxHash.Hex(), e.Error)
	}
}

func writeView(w io.Writer, v *dashboard.View) {
	if v.Route.Message != "" {
		fmt.Fprintln(w, v.Route.Message)
	}
	if !v.Route.Granted() {
		return
	}
	fmt.Fprintln(w)

	switch {
	case v.Admin != nil:
		s := v.Admin
		fmt.Fprintf(w, "Accounts:\t%d\n", s.Total)
		fmt.Fprintf(w, "Pending:\t%d\n", s.Pending)
		fmt.Fprintf(w, "Approved:\t%d\n", s.Approved)
		fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)
		fmt.Fprintln(w)
		writeAccounts(w, s.Accounts)
	case v.Citizen != nil:
		s := v.Citizen
		fmt.Fprintf(w, "Tokens:\t%d (%d in progress, %d rewarded)\n", s.Total, s.InProgress, s.Rewarded)
		fmt.Fprintln(w)
		writeTokens(w, s.Tokens)
		if len(s.Rewards) > 0 {
			fmt.Fprintln(w)
			writeRewarded(w, s.Rewards)
		}
	case v.Transporter != nil:
		s := v.Transporter
		fmt.Fprintln(w, "Available to collect:")
		writeTokens(w, s.Available)
		fmt.Fprintln(w, "\nHeld:")
		writeTokens(w, s.Owned)
		fmt.Fprintln(w, "\nOutgoing transfers:")
		writeTransfers(w, s.OutgoingTransfers)
		fmt.Fprintln(w, "\nCollected:")
		writeTokens(w, s.Collected)
	case v.Processor != nil:
		s := v.Processor
		fmt.Fprintln(w, "Incoming transfers:")
		writeTransfers(w, s.IncomingTransfers)
		fmt.Fprintln(w, "\nAwaiting processing:")
		writeTokens(w, s.AwaitingProcessing)
		fmt.Fprintln(w, "\nProcessed:")
		writeTokens(w, s.Processed)
	case v.RewardAuthority != nil:
		s := v.RewardAuthority
		fmt.Fprintln(w, "Incoming transfers:")
		writeTransfers(w, s.IncomingTransfers)
		fmt.Fprintln(w, "\nAwaiting reward:")
		writeTokens(w, s.AwaitingReward)
		fmt.Fprintln(w, "\nRewarded:")
		writeRewarded(w, s.Rewarded)
	}
}
