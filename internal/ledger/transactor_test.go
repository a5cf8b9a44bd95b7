package ledger

import (
	"context"
	"encoding/json"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

var (
	testSender   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testTxHash   = common.HexToHash("0xabc1")
)

func testRequest() TxRequest {
	return TxRequest{
		Contract: "Traceability",
		Method:   "collectToken",
		From:     testSender,
		To:       testContract,
		Data:     []byte{0x01, 0x02, 0x03, 0x04},
	}
}

// receiptAfter returns nil for the first n polls, then receipt.
func receiptAfter(n int32, receipt *rpc.TransactionReceipt) func(context.Context, common.Hash) (*rpc.TransactionReceipt, error) {
	var polls atomic.Int32
	return func(context.Context, common.Hash) (*rpc.TransactionReceipt, error) {
		if polls.Add(1) <= n {
			return nil, nil
		}
		return receipt, nil
	}
}

func newTestTransactor(p Provider, j Journal, opts ...TransactorOption) *Transactor {
	opts = append([]TransactorOption{WithJournal(j), WithPollInterval(time.Millisecond)}, opts...)
	return NewTransactor(p, opts...)
}

func TestSubmit_EndpointSigned(t *testing.T) {
	var sent rpc.CallArgs
	p := &fakeProvider{
		estimateGasFn: func(_ context.Context, args rpc.CallArgs) (uint64, error) {
			assert.Nil(t, args.Gas)
			return 100_000, nil
		},
		sendTxFn: func(_ context.Context, args rpc.CallArgs) (common.Hash, error) {
			sent = args
			return testTxHash, nil
		},
		receiptFn: receiptAfter(2, &rpc.TransactionReceipt{Status: "0x1", BlockNumber: "0x2a", GasUsed: "0x5208"}),
	}
	journal := &memJournal{}

	receipt, err := newTestTransactor(p, journal).Submit(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, testTxHash, receipt.TxHash)
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	assert.Equal(t, uint64(21000), receipt.GasUsed)

	require.NotNil(t, sent.Gas)
	assert.Equal(t, uint64(120_000), uint64(*sent.Gas))
	assert.Equal(t, testSender, *sent.From)
	assert.Equal(t, testContract, *sent.To)

	require.Len(t, journal.entries, 1)
	entry := journal.entries[0]
	assert.Equal(t, TxConfirmed, entry.Status)
	assert.Equal(t, testTxHash, entry.TxHash)
	assert.Equal(t, uint64(42), entry.BlockNumber)
	assert.Empty(t, entry.Error)
}

func TestSubmit_PreflightRevertNeverBroadcasts(t *testing.T) {
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) {
			return 0, &rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted: Token not in Created stage"}
		},
	}
	journal := &memJournal{}

	_, err := newTestTransactor(p, journal).Submit(context.Background(), testRequest())
	require.Error(t, err)

	var revert *RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "Token not in Created stage", revert.Reason)
	assert.Equal(t, "Token not in Created stage", err.Error())
	assert.Equal(t, common.Hash{}, revert.TxHash)
	assert.NotContains(t, p.Calls(), "eth_sendTransaction")

	require.Len(t, journal.entries, 1)
	assert.Equal(t, TxReverted, journal.entries[0].Status)
}

func TestSubmit_RevertDataDecoded(t *testing.T) {
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) {
			return 0, &rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted", Data: json.RawMessage(`"0xdeadbeef"`)}
		},
	}
	req := testRequest()
	req.DecodeRevert = func(data []byte) (string, bool) {
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data)
		return "Only transporters can collect", true
	}

	_, err := newTestTransactor(p, &memJournal{}).Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "Only transporters can collect", err.Error())
}

func TestSubmit_BareRevertUsesGenericReason(t *testing.T) {
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) {
			return 0, &rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted"}
		},
	}

	_, err := newTestTransactor(p, &memJournal{}).Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.Equal(t, GenericRevertReason, err.Error())
}

func TestSubmit_UserDeclined(t *testing.T) {
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) { return 50_000, nil },
		sendTxFn: func(context.Context, rpc.CallArgs) (common.Hash, error) {
			return common.Hash{}, &rpc.RPCError{Code: rpc.CodeUserRejected, Message: "User denied transaction signature."}
		},
	}
	journal := &memJournal{}

	_, err := newTestTransactor(p, journal).Submit(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrUserDeclined)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, TxDeclined, journal.entries[0].Status)
	assert.Equal(t, "Request declined in wallet", journal.entries[0].Error)
}

func TestSubmit_MinedWithFailedStatus(t *testing.T) {
	tests := []struct {
		name   string
		replay func(context.Context, rpc.CallArgs, string) ([]byte, error)
		want   string
	}{
		{
			name: "reason recovered by replay",
			replay: func(_ context.Context, _ rpc.CallArgs, block string) ([]byte, error) {
				assert.Equal(t, "0x10", block)
				return nil, &rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted: Transfer already resolved"}
			},
			want: "Transfer already resolved",
		},
		{
			name: "replay succeeds",
			replay: func(context.Context, rpc.CallArgs, string) ([]byte, error) {
				return []byte{}, nil
			},
			want: FailedStatusReason,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{
				estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) { return 21_000, nil },
				sendTxFn:      func(context.Context, rpc.CallArgs) (common.Hash, error) { return testTxHash, nil },
				receiptFn:     receiptAfter(0, &rpc.TransactionReceipt{Status: "0x0", BlockNumber: "0x10"}),
				callFn:        tc.replay,
			}
			journal := &memJournal{}

			_, err := newTestTransactor(p, journal).Submit(context.Background(), testRequest())
			var revert *RevertError
			require.ErrorAs(t, err, &revert)
			assert.Equal(t, tc.want, revert.Reason)
			assert.Equal(t, testTxHash, revert.TxHash)

			require.Len(t, journal.entries, 1)
			assert.Equal(t, TxReverted, journal.entries[0].Status)
			assert.Equal(t, uint64(16), journal.entries[0].BlockNumber)
		})
	}
}

func TestSubmit_LocalSigner(t *testing.T) {
	signer, err := NewKeySigner("0x" + testKeyHex)
	require.NoError(t, err)

	var broadcast *types.Transaction
	p := &fakeProvider{
		chainIDFn:     func(context.Context) (uint64, error) { return 31337, nil },
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) { return 50_000, nil },
		pendingNonceFn: func(_ context.Context, account common.Address) (uint64, error) {
			assert.Equal(t, signer.Address(), account)
			return 7, nil
		},
		gasPriceFn: func(context.Context) (*big.Int, error) { return big.NewInt(1_000_000_000), nil },
		sendRawTxFn: func(_ context.Context, raw []byte) (common.Hash, error) {
			broadcast = new(types.Transaction)
			require.NoError(t, broadcast.UnmarshalBinary(raw))
			return broadcast.Hash(), nil
		},
		receiptFn: receiptAfter(0, &rpc.TransactionReceipt{Status: "0x1", BlockNumber: "0x1"}),
	}

	req := testRequest()
	req.From = common.Address{}
	receipt, err := newTestTransactor(p, &memJournal{}, WithSigner(signer)).Submit(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, broadcast)
	assert.Equal(t, broadcast.Hash(), receipt.TxHash)
	assert.Equal(t, uint64(7), broadcast.Nonce())
	assert.Equal(t, uint64(60_000), broadcast.Gas())
	assert.Equal(t, testContract, *broadcast.To())
	assert.Equal(t, req.Data, broadcast.Data())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), broadcast)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
	assert.NotContains(t, p.Calls(), "eth_sendTransaction")
}

func TestSubmit_SenderMustMatchLocalSigner(t *testing.T) {
	signer, err := NewKeySigner(testKeyHex)
	require.NoError(t, err)

	_, err = newTestTransactor(&fakeProvider{}, &memJournal{}, WithSigner(signer)).Submit(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not the local signer")
}

func TestSubmit_NoSender(t *testing.T) {
	req := testRequest()
	req.From = common.Address{}

	_, err := newTestTransactor(&fakeProvider{}, &memJournal{}).Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestSubmit_StopsWaitingWhenContextEnds(t *testing.T) {
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) { return 21_000, nil },
		sendTxFn:      func(context.Context, rpc.CallArgs) (common.Hash, error) { return testTxHash, nil },
		receiptFn:     func(context.Context, common.Hash) (*rpc.TransactionReceipt, error) { return nil, nil },
	}
	journal := &memJournal{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestTransactor(p, journal).Submit(ctx, testRequest())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Len(t, journal.entries, 1)
	assert.Equal(t, TxUnconfirmed, journal.entries[0].Status)
	assert.Equal(t, testTxHash, journal.entries[0].TxHash)
}

func TestSubmit_ToleratesTransientReceiptErrors(t *testing.T) {
	var polls atomic.Int32
	p := &fakeProvider{
		estimateGasFn: func(context.Context, rpc.CallArgs) (uint64, error) { return 21_000, nil },
		sendTxFn:      func(context.Context, rpc.CallArgs) (common.Hash, error) { return testTxHash, nil },
		receiptFn: func(context.Context, common.Hash) (*rpc.TransactionReceipt, error) {
			if polls.Add(1) == 1 {
				return nil, &rpc.RPCError{Code: rpc.CodeInternalError, Message: "internal error"}
			}
			return &rpc.TransactionReceipt{Status: "0x1", BlockNumber: "0x3"}, nil
		},
	}

	receipt, err := newTestTransactor(p, &memJournal{}).Submit(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), receipt.BlockNumber)
	assert.Equal(t, int32(2), polls.Load())
}
