package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/emperorhan/recycle-trace/internal/circuitbreaker"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDecodeErr struct{}

func (testDecodeErr) Error() string       { return "bad tuple" }
func (testDecodeErr) DecodeFailure() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"revert error", &RevertError{Reason: "nope"}, KindReverted},
		{"wrapped revert", fmt.Errorf("collect: %w", &RevertError{}), KindReverted},
		{"decode error", fmt.Errorf("token: %w", testDecodeErr{}), KindDecode},
		{"not bound", fmt.Errorf("list: %w", ErrNotBound), KindNotBound},
		{"declined sentinel", ErrUserDeclined, KindUserDeclined},
		{"eip1193 4001", &rpc.RPCError{Code: rpc.CodeUserRejected, Message: "User rejected"}, KindUserDeclined},
		{"eip1193 4900", &rpc.RPCError{Code: rpc.CodeDisconnected, Message: "disconnected"}, KindProviderUnavailable},
		{"circuit open", fmt.Errorf("call: %w", circuitbreaker.ErrCircuitOpen), KindProviderUnavailable},
		{"revert code", &rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted"}, KindReverted},
		{"revert message", &rpc.RPCError{Code: -32000, Message: "execution reverted: Not admin"}, KindReverted},
		{"server range", &rpc.RPCError{Code: -32000, Message: "header not found"}, KindTransient},
		{"internal", &rpc.RPCError{Code: rpc.CodeInternalError, Message: "internal"}, KindTransient},
		{"canceled", context.Canceled, KindCanceled},
		{"deadline", fmt.Errorf("rpc: %w", context.DeadlineExceeded), KindTransient},
		{"dial refused", &net.OpError{Op: "dial", Err: errors.New("connect: connection refused")}, KindProviderUnavailable},
		{"typed 429", fmt.Errorf("eth_call: %w", &rpc.HTTPStatusError{StatusCode: 429}), KindTransient},
		{"typed 502", &rpc.HTTPStatusError{StatusCode: 502, Body: "bad gateway"}, KindProviderUnavailable},
		{"typed 404", &rpc.HTTPStatusError{StatusCode: 404}, KindUnknown},
		{"http 503", errors.New("http status 503: unavailable"), KindTransient},
		{"refused text", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), KindProviderUnavailable},
		{"other", errors.New("something else"), KindUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err).Kind)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.Equal(t, "nil_error", Classify(nil).Reason)
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.True(t, IsUpstreamFailure(errors.New("http status 502: bad gateway")))
	assert.True(t, IsUpstreamFailure(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, IsUpstreamFailure(&rpc.RPCError{Code: rpc.CodeExecutionRevert, Message: "execution reverted"}))
	assert.False(t, IsUpstreamFailure(&rpc.RPCError{Code: rpc.CodeUserRejected, Message: "denied"}))
	assert.False(t, IsUpstreamFailure(circuitbreaker.ErrCircuitOpen))
}

func TestTranslate(t *testing.T) {
	err := Translate("AccessManager", "requestRole", &rpc.RPCError{Code: rpc.CodeUserRejected, Message: "denied"}, nil)
	assert.ErrorIs(t, err, ErrUserDeclined)

	err = Translate("AccessManager", "approveRole", &rpc.RPCError{Code: 3, Message: "execution reverted: Account not pending"}, nil)
	var revert *RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "AccessManager", revert.Contract)
	assert.Equal(t, "approveRole", revert.Method)
	assert.Equal(t, "Account not pending", revert.Reason)

	err = Translate("Traceability", "getAllTokens", errors.New("dial tcp: connection refused"), nil)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	assert.NoError(t, Translate("x", "y", nil, nil))
}

func TestRevertReason_HardhatPrefix(t *testing.T) {
	err := &rpc.RPCError{Code: -32603, Message: "VM Exception while processing transaction: revert Only admin"}
	assert.Equal(t, "Only admin", revertReason(err, nil))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, GenericRevertReason, Describe(&RevertError{}))
	assert.Equal(t, "Not admin", Describe(fmt.Errorf("approve: %w", &RevertError{Reason: "Not admin"})))
	assert.Equal(t, "Request declined in wallet", Describe(ErrUserDeclined))
	assert.Equal(t, "Wallet provider unavailable", Describe(ErrProviderUnavailable))
	assert.Equal(t, "Connect a wallet first", Describe(ErrNotBound))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}
