package ledger

import (
	"context"
	"math/big"

	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/ethereum/go-ethereum/common"
)

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks . Provider,Contract,Journal

// Provider is the wallet/node endpoint every ledger interaction goes through.
type Provider interface {
	ChainID(ctx context.Context) (uint64, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Call(ctx context.Context, args rpc.CallArgs, blockTag string) ([]byte, error)
	EstimateGas(ctx context.Context, args rpc.CallArgs) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, args rpc.CallArgs) (common.Hash, error)
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*rpc.TransactionReceipt, error)
	GetLogs(ctx context.Context, filter rpc.LogFilter) ([]*rpc.Log, error)
}

var _ Provider = (*rpc.Client)(nil)

// Contract is a bound on-chain contract. Values cross this boundary in ABI
// declaration order: tuples become []any and tuple arrays become []any of
// []any, leaving shape validation to the adapters.
type Contract interface {
	Name() string
	Address() common.Address
	Call(ctx context.Context, from common.Address, method string, args ...any) ([]any, error)
	Transact(ctx context.Context, from common.Address, method string, args ...any) (*Receipt, error)
	// FilterEvents returns every log of the named event from the deployment
	// block to latest, in emission order. Each indexed value narrows the
	// matching indexed parameter; nil matches anything.
	FilterEvents(ctx context.Context, event string, indexed ...any) ([]Event, error)
}

// Event is one decoded contract log.
type Event struct {
	Name        string
	Args        []any
	BlockNumber uint64
	LogIndex    uint
	TxHash      common.Hash
}

// Receipt is the confirmed outcome of a successful transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Logs        []*rpc.Log
}
