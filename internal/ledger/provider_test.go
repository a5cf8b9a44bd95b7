package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/ethereum/go-ethereum/common"
)

var errUnexpectedCall = errors.New("unexpected provider call")

// fakeProvider answers through function fields; unset fields fail the call.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	chainIDFn         func(ctx context.Context) (uint64, error)
	accountsFn        func(ctx context.Context) ([]common.Address, error)
	requestAccountsFn func(ctx context.Context) ([]common.Address, error)
	callFn            func(ctx context.Context, args rpc.CallArgs, blockTag string) ([]byte, error)
	estimateGasFn     func(ctx context.Context, args rpc.CallArgs) (uint64, error)
	gasPriceFn        func(ctx context.Context) (*big.Int, error)
	pendingNonceFn    func(ctx context.Context, account common.Address) (uint64, error)
	sendTxFn          func(ctx context.Context, args rpc.CallArgs) (common.Hash, error)
	sendRawTxFn       func(ctx context.Context, raw []byte) (common.Hash, error)
	receiptFn         func(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error)
	getLogsFn         func(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error)
}

func (f *fakeProvider) track(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) ChainID(ctx context.Context) (uint64, error) {
	f.track("eth_chainId")
	if f.chainIDFn == nil {
		return 0, errUnexpectedCall
	}
	return f.chainIDFn(ctx)
}

func (f *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	f.track("eth_accounts")
	if f.accountsFn == nil {
		return nil, errUnexpectedCall
	}
	return f.accountsFn(ctx)
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.track("eth_requestAccounts")
	if f.requestAccountsFn == nil {
		return nil, errUnexpectedCall
	}
	return f.requestAccountsFn(ctx)
}

func (f *fakeProvider) Call(ctx context.Context, args rpc.CallArgs, blockTag string) ([]byte, error) {
	f.track("eth_call")
	if f.callFn == nil {
		return nil, errUnexpectedCall
	}
	return f.callFn(ctx, args, blockTag)
}

func (f *fakeProvider) EstimateGas(ctx context.Context, args rpc.CallArgs) (uint64, error) {
	f.track("eth_estimateGas")
	if f.estimateGasFn == nil {
		return 0, errUnexpectedCall
	}
	return f.estimateGasFn(ctx, args)
}

func (f *fakeProvider) GasPrice(ctx context.Context) (*big.Int, error) {
	f.track("eth_gasPrice")
	if f.gasPriceFn == nil {
		return nil, errUnexpectedCall
	}
	return f.gasPriceFn(ctx)
}

func (f *fakeProvider) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	f.track("eth_getTransactionCount")
	if f.pendingNonceFn == nil {
		return 0, errUnexpectedCall
	}
	return f.pendingNonceFn(ctx, account)
}

func (f *fakeProvider) SendTransaction(ctx context.Context, args rpc.CallArgs) (common.Hash, error) {
	f.track("eth_sendTransaction")
	if f.sendTxFn == nil {
		return common.Hash{}, errUnexpectedCall
	}
	return f.sendTxFn(ctx, args)
}

func (f *fakeProvider) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	f.track("eth_sendRawTransaction")
	if f.sendRawTxFn == nil {
		return common.Hash{}, errUnexpectedCall
	}
	return f.sendRawTxFn(ctx, raw)
}

func (f *fakeProvider) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error) {
	f.track("eth_getTransactionReceipt")
	if f.receiptFn == nil {
		return nil, errUnexpectedCall
	}
	return f.receiptFn(ctx, hash)
}

func (f *fakeProvider) GetLogs(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error) {
	f.track("eth_getLogs")
	if f.getLogsFn == nil {
		return nil, errUnexpectedCall
	}
	return f.getLogsFn(ctx, filter)
}

// memJournal keeps entries in memory.
type memJournal struct {
	mu      sync.Mutex
	entries []JournalEntry
}

func (j *memJournal) Record(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memJournal) Recent(_ context.Context, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit > len(j.entries) {
		limit = len(j.entries)
	}
	return append([]JournalEntry(nil), j.entries[len(j.entries)-limit:]...), nil
}
