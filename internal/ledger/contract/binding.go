package contract

import (
	"bytes"
	"cmp"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/emperorhan/recycle-trace/internal/ledger"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/emperorhan/recycle-trace/internal/metrics"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	AccessManagerName = "AccessManager"
	TraceabilityName  = "Traceability"
)

var (
	//go:embed abi/AccessManager.json
	accessManagerABI []byte
	//go:embed abi/Traceability.json
	traceabilityABI []byte
)

// Binding implements ledger.Contract over an ABI description, a provider for
// reads and logs, and a transactor for writes.
type Binding struct {
	name      string
	address   common.Address
	abi       abi.ABI
	provider  ledger.Provider
	tx        *ledger.Transactor
	fromBlock uint64
	logger    *slog.Logger
}

var _ ledger.Contract = (*Binding)(nil)

type Option func(*Binding)

// WithFromBlock starts event queries at the deployment block instead of
// genesis.
func WithFromBlock(block uint64) Option {
	return func(b *Binding) { b.fromBlock = block }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Binding) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewAccessManager(address common.Address, provider ledger.Provider, tx *ledger.Transactor, opts ...Option) (*Binding, error) {
	return New(AccessManagerName, accessManagerABI, address, provider, tx, opts...)
}

func NewTraceability(address common.Address, provider ledger.Provider, tx *ledger.Transactor, opts ...Option) (*Binding, error) {
	return New(TraceabilityName, traceabilityABI, address, provider, tx, opts...)
}

func New(name string, abiJSON []byte, address common.Address, provider ledger.Provider, tx *ledger.Transactor, opts ...Option) (*Binding, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%s: contract address is required", name)
	}
	if provider == nil {
		return nil, fmt.Errorf("%s: %w", name, ledger.ErrProviderUnavailable)
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("%s: parse abi: %w", name, err)
	}
	b := &Binding{
		name:     name,
		address:  address,
		abi:      parsed,
		provider: provider,
		tx:       tx,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "contract", "contract", name)
	return b, nil
}

func (b *Binding) Name() string { return b.name }

func (b *Binding) Address() common.Address { return b.address }

// Call executes a view method against the latest block.
func (b *Binding) Call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	values, err := b.call(ctx, from, method, args...)
	status := "ok"
	if err != nil {
		status = string(ledger.Classify(err).Kind)
	}
	metrics.ContractCallsTotal.WithLabelValues(b.name, method, status).Inc()
	return values, err
}

func (b *Binding) call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error) {
	m, ok := b.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s: unknown method %q", b.name, method)
	}
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: pack arguments: %w", b.name, method, err)
	}

	to := b.address
	callArgs := rpc.CallArgs{To: &to, Data: data}
	if from != (common.Address{}) {
		callArgs.From = &from
	}
	out, err := b.provider.Call(ctx, callArgs, "latest")
	if err != nil {
		return nil, ledger.Translate(b.name, method, err, b.DecodeRevert)
	}
	if len(out) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("%s.%s: empty result, no contract code at %s", b.name, method, b.address.Hex())
	}

	values, err := m.Outputs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: unpack result: %w", b.name, method, err)
	}
	for i := range values {
		values[i] = plain(values[i])
	}
	return values, nil
}

// Transact packs and submits a state-changing method, returning once mined.
func (b *Binding) Transact(ctx context.Context, from common.Address, method string, args ...any) (*ledger.Receipt, error) {
	if b.tx == nil {
		return nil, fmt.Errorf("%s.%s: %w", b.name, method, ledger.ErrNotBound)
	}
	if _, ok := b.abi.Methods[method]; !ok {
		return nil, fmt.Errorf("%s: unknown method %q", b.name, method)
	}
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: pack arguments: %w", b.name, method, err)
	}
	return b.tx.Submit(ctx, ledger.TxRequest{
		Contract:     b.name,
		Method:       method,
		From:         from,
		To:           b.address,
		Data:         data,
		DecodeRevert: b.DecodeRevert,
	})
}

func (b *Binding) FilterEvents(ctx context.Context, event string, indexed ...any) ([]ledger.Event, error) {
	events, err := b.filterEvents(ctx, event, indexed...)
	status := "ok"
	if err != nil {
		status = string(ledger.Classify(err).Kind)
	}
	metrics.ContractEventQueriesTotal.WithLabelValues(b.name, event, status).Inc()
	return events, err
}

func (b *Binding) filterEvents(ctx context.Context, event string, indexed ...any) ([]ledger.Event, error) {
	ev, ok := b.abi.Events[event]
	if !ok {
		return nil, fmt.Errorf("%s: unknown event %q", b.name, event)
	}

	query := make([][]any, len(indexed))
	for i, v := range indexed {
		if v != nil {
			query[i] = []any{v}
		}
	}
	argTopics, err := abi.MakeTopics(query...)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: build topics: %w", b.name, event, err)
	}
	topics := [][]common.Hash{{ev.ID}}
	for _, t := range argTopics {
		if len(t) == 0 {
			t = nil
		}
		topics = append(topics, t)
	}

	logs, err := b.provider.GetLogs(ctx, rpc.LogFilter{
		Address:   []common.Address{b.address},
		FromBlock: rpc.FormatBlock(b.fromBlock),
		ToBlock:   "latest",
		Topics:    topics,
	})
	if err != nil {
		return nil, ledger.Translate(b.name, "eth_getLogs", err, nil)
	}

	out := make([]ledger.Event, 0, len(logs))
	for _, lg := range logs {
		if lg == nil || lg.Removed {
			continue
		}
		decoded, err := b.decodeLog(ev, lg)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: decode log %s#%s: %w", b.name, event, lg.TransactionHash, lg.LogIndex, err)
		}
		out = append(out, decoded)
	}
	slices.SortStableFunc(out, func(x, y ledger.Event) int {
		if c := cmp.Compare(x.BlockNumber, y.BlockNumber); c != 0 {
			return c
		}
		return cmp.Compare(x.LogIndex, y.LogIndex)
	})
	b.logger.Debug("events fetched", "event", event, "count", len(out))
	return out, nil
}

func (b *Binding) decodeLog(ev abi.Event, lg *rpc.Log) (ledger.Event, error) {
	if len(lg.Topics) == 0 || common.HexToHash(lg.Topics[0]) != ev.ID {
		return ledger.Event{}, errors.New("topic does not match event signature")
	}

	fields := make(map[string]any, len(ev.Inputs))
	if nonIndexed := ev.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		data, err := hexutil.Decode(lg.Data)
		if err != nil {
			return ledger.Event{}, fmt.Errorf("log data: %w", err)
		}
		if err := nonIndexed.UnpackIntoMap(fields, data); err != nil {
			return ledger.Event{}, fmt.Errorf("unpack data: %w", err)
		}
	}

	var indexedArgs abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexedArgs = append(indexedArgs, in)
		}
	}
	if len(lg.Topics)-1 != len(indexedArgs) {
		return ledger.Event{}, fmt.Errorf("expected %d indexed topics, got %d", len(indexedArgs), len(lg.Topics)-1)
	}
	topicHashes := make([]common.Hash, 0, len(indexedArgs))
	for _, t := range lg.Topics[1:] {
		topicHashes = append(topicHashes, common.HexToHash(t))
	}
	if err := abi.ParseTopicsIntoMap(fields, indexedArgs, topicHashes); err != nil {
		return ledger.Event{}, fmt.Errorf("parse topics: %w", err)
	}

	args := make([]any, len(ev.Inputs))
	for i, in := range ev.Inputs {
		args[i] = plain(fields[in.Name])
	}

	block, err := rpc.ParseHexUint64(lg.BlockNumber)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("block number: %w", err)
	}
	index, err := rpc.ParseHexUint64(lg.LogIndex)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("log index: %w", err)
	}
	return ledger.Event{
		Name:        ev.Name,
		Args:        args,
		BlockNumber: block,
		LogIndex:    uint(index),
		TxHash:      common.HexToHash(lg.TransactionHash),
	}, nil
}

// DecodeRevert extracts the message from Error(string) or Panic(uint256)
// revert data.
func (b *Binding) DecodeRevert(data []byte) (string, bool) {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return "", false
	}
	return reason, true
}

// plain turns the anonymous structs go-ethereum builds for tuples into
// positional []any, recursively. Byte slices and fixed arrays are kept.
func plain(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Struct:
		out := make([]any, rv.NumField())
		for i := range out {
			out[i] = plain(rv.Field(i).Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plain(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
