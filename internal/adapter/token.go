package adapter

import (
	"github.com/emperorhan/recycle-trace/internal/domain/model"
	"github.com/emperorhan/recycle-trace/internal/ledger"
)

const (
	tokenRecord     = "token"
	transferRecord  = "transfer"
	historyRecord   = "custody_changed"
	collectedRecord = "token_collected"
	processedRecord = "token_processed"
	rewardedRecord  = "token_rewarded"
)

// NormalizeToken decodes the nine-field token tuple.
func NormalizeToken(raw any) (model.Token, error) {
	f, err := fields(raw, tokenRecord, 9)
	if err != nil {
		return model.Token{}, err
	}

	var t model.Token
	if t.ID, err = quantity(tokenRecord, "id", f[0]); err != nil {
		return model.Token{}, err
	}
	if t.Creator, err = address(tokenRecord, "creator", f[1]); err != nil {
		return model.Token{}, err
	}
	if t.CurrentHolder, err = address(tokenRecord, "currentHolder", f[2]); err != nil {
		return model.Token{}, err
	}
	if t.Name, err = text(tokenRecord, "name", f[3]); err != nil {
		return model.Token{}, err
	}
	if t.TotalSupply, err = quantity(tokenRecord, "totalSupply", f[4]); err != nil {
		return model.Token{}, err
	}
	if t.CitizenFeatures, err = text(tokenRecord, "citizenFeatures", f[5]); err != nil {
		return model.Token{}, err
	}
	if t.ProcessorFeatures, err = text(tokenRecord, "processorFeatures", f[6]); err != nil {
		return model.Token{}, err
	}
	if t.DateCreated, err = timestamp(tokenRecord, "dateCreated", f[7]); err != nil {
		return model.Token{}, err
	}
	stage, err := enum(tokenRecord, "stage", f[8], func(v uint8) bool { return model.TokenStage(v).Valid() })
	if err != nil {
		return model.Token{}, err
	}
	t.Stage = model.TokenStage(stage)
	return t, nil
}

func NormalizeTokens(raw any, onDrop OnDrop) ([]model.Token, error) {
	return decodeList(raw, tokenRecord, NormalizeToken, onDrop)
}

// NormalizeTransfer decodes the seven-field transfer tuple.
func NormalizeTransfer(raw any) (model.Transfer, error) {
	f, err := fields(raw, transferRecord, 7)
	if err != nil {
		return model.Transfer{}, err
	}

	var t model.Transfer
	if t.ID, err = quantity(transferRecord, "id", f[0]); err != nil {
		return model.Transfer{}, err
	}
	if t.TokenID, err = quantity(transferRecord, "tokenId", f[1]); err != nil {
		return model.Transfer{}, err
	}
	if t.From, err = address(transferRecord, "from", f[2]); err != nil {
		return model.Transfer{}, err
	}
	if t.To, err = address(transferRecord, "to", f[3]); err != nil {
		return model.Transfer{}, err
	}
	if t.Amount, err = quantity(transferRecord, "amount", f[4]); err != nil {
		return model.Transfer{}, err
	}
	status, err := enum(transferRecord, "status", f[5], func(v uint8) bool { return model.TransferStatus(v).Valid() })
	if err != nil {
		return model.Transfer{}, err
	}
	t.Status = model.TransferStatus(status)
	if t.Timestamp, err = timestamp(transferRecord, "timestamp", f[6]); err != nil {
		return model.Transfer{}, err
	}
	return t, nil
}

func NormalizeTransfers(raw any, onDrop OnDrop) ([]model.Transfer, error) {
	return decodeList(raw, transferRecord, NormalizeTransfer, onDrop)
}

// NormalizeHistoryEntry decodes a CustodyChanged log:
// (id, previousHolder, newHolder, action, timestamp).
func NormalizeHistoryEntry(ev ledger.Event) (model.TokenHistoryEntry, error) {
	f, err := fields(ev.Args, historyRecord, 5)
	if err != nil {
		return model.TokenHistoryEntry{}, err
	}

	h := model.TokenHistoryEntry{
		TxHash:      ev.TxHash,
		BlockNumber: ev.BlockNumber,
		LogIndex:    ev.LogIndex,
	}
	if h.TokenID, err = quantity(historyRecord, "id", f[0]); err != nil {
		return model.TokenHistoryEntry{}, err
	}
	if h.PreviousHolder, err = address(historyRecord, "previousHolder", f[1]); err != nil {
		return model.TokenHistoryEntry{}, err
	}
	if h.NewHolder, err = address(historyRecord, "newHolder", f[2]); err != nil {
		return model.TokenHistoryEntry{}, err
	}
	action, err := enum(historyRecord, "action", f[3], func(v uint8) bool { return model.TokenStage(v).Valid() })
	if err != nil {
		return model.TokenHistoryEntry{}, err
	}
	h.Action = model.TokenStage(action)
	if h.Timestamp, err = timestamp(historyRecord, "timestamp", f[4]); err != nil {
		return model.TokenHistoryEntry{}, err
	}
	return h, nil
}

// NormalizeHistory decodes a slice of CustodyChanged events, keeping order.
func NormalizeHistory(events []ledger.Event, onDrop OnDrop) ([]model.TokenHistoryEntry, error) {
	return decodeEvents(events, historyRecord, NormalizeHistoryEntry, onDrop)
}

// NormalizeCollected decodes a TokenCollected log: (id, transporter).
func NormalizeCollected(ev ledger.Event) (model.CollectedToken, error) {
	f, err := fields(ev.Args, collectedRecord, 2)
	if err != nil {
		return model.CollectedToken{}, err
	}
	var c model.CollectedToken
	if c.TokenID, err = quantity(collectedRecord, "id", f[0]); err != nil {
		return model.CollectedToken{}, err
	}
	if c.Transporter, err = address(collectedRecord, "transporter", f[1]); err != nil {
		return model.CollectedToken{}, err
	}
	return c, nil
}

func NormalizeCollectedEvents(events []ledger.Event, onDrop OnDrop) ([]model.CollectedToken, error) {
	return decodeEvents(events, collectedRecord, NormalizeCollected, onDrop)
}

// NormalizeProcessed decodes a TokenProcessed log: (id, processor).
func NormalizeProcessed(ev ledger.Event) (model.ProcessedToken, error) {
	f, err := fields(ev.Args, processedRecord, 2)
	if err != nil {
		return model.ProcessedToken{}, err
	}
	var p model.ProcessedToken
	if p.TokenID, err = quantity(processedRecord, "id", f[0]); err != nil {
		return model.ProcessedToken{}, err
	}
	if p.Processor, err = address(processedRecord, "processor", f[1]); err != nil {
		return model.ProcessedToken{}, err
	}
	return p, nil
}

func NormalizeProcessedEvents(events []ledger.Event, onDrop OnDrop) ([]model.ProcessedToken, error) {
	return decodeEvents(events, processedRecord, NormalizeProcessed, onDrop)
}

// NormalizeRewarded decodes a TokenRewarded log:
// (id, citizen, amount, authority, rewardFeatures).
func NormalizeRewarded(ev ledger.Event) (model.RewardedToken, error) {
	f, err := fields(ev.Args, rewardedRecord, 5)
	if err != nil {
		return model.RewardedToken{}, err
	}
	var r model.RewardedToken
	if r.TokenID, err = quantity(rewardedRecord, "id", f[0]); err != nil {
		return model.RewardedToken{}, err
	}
	if r.Citizen, err = address(rewardedRecord, "citizen", f[1]); err != nil {
		return model.RewardedToken{}, err
	}
	if r.Amount, err = quantity(rewardedRecord, "amount", f[2]); err != nil {
		return model.RewardedToken{}, err
	}
	if r.Authority, err = address(rewardedRecord, "authority", f[3]); err != nil {
		return model.RewardedToken{}, err
	}
	if r.RewardFeatures, err = text(rewardedRecord, "rewardFeatures", f[4]); err != nil {
		return model.RewardedToken{}, err
	}
	return r, nil
}

func NormalizeRewardedEvents(events []ledger.Event, onDrop OnDrop) ([]model.RewardedToken, error) {
	return decodeEvents(events, rewardedRecord, NormalizeRewarded, onDrop)
}

func decodeEvents[T any](events []ledger.Event, record string, decode func(ledger.Event) (T, error), onDrop OnDrop) ([]T, error) {
	raw := make([]any, len(events))
	for i, ev := range events {
		raw[i] = ev
	}
	return decodeList(raw, record, func(v any) (T, error) {
		return decode(v.(ledger.Event))
	}, onDrop)
}
