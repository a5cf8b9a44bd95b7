package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/emperorhan/recycle-trace/internal/circuitbreaker"
	"github.com/emperorhan/recycle-trace/internal/ledger/rpc"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrProviderUnavailable = errors.New("wallet provider unavailable")
	ErrUserDeclined        = errors.New("request declined in wallet")
	ErrNotBound            = errors.New("ledger service not bound")
)

const (
	// GenericRevertReason is reported when the ledger gives no reason.
	GenericRevertReason = "Transaction reverted"
	// FailedStatusReason is reported for a mined transaction with status 0
	// whose reason could not be recovered.
	FailedStatusReason = "Transaction failed (status 0)"
)

// RevertError carries the ledger's revert reason for a rejected call or
// transaction. TxHash is zero when the revert was caught before broadcast.
type RevertError struct {
	Contract string
	Method   string
	TxHash   common.Hash
	Reason   string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return GenericRevertReason
	}
	return e.Reason
}

// RevertDecoder turns ABI-encoded revert data into a message.
type RevertDecoder func(data []byte) (string, bool)

// decodeFailure is implemented by the adapters' tagged decode errors.
type decodeFailure interface {
	DecodeFailure() bool
}

type Kind string

const (
	KindProviderUnavailable Kind = "provider_unavailable"
	KindUserDeclined        Kind = "user_declined"
	KindReverted            Kind = "reverted"
	KindDecode              Kind = "decode"
	KindNotBound            Kind = "not_bound"
	KindCanceled            Kind = "canceled"
	KindTransient           Kind = "transient"
	KindUnknown             Kind = "unknown"
)

type Classification struct {
	Kind   Kind
	Reason string
}

// Classify sorts an error into the failure taxonomy. Nothing retries on the
// result; it drives metrics labels, breaker accounting, and HTTP status codes.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown, Reason: "nil_error"}
	}

	var revert *RevertError
	if errors.As(err, &revert) {
		return Classification{Kind: KindReverted, Reason: "revert_error"}
	}
	var decodeErr decodeFailure
	if errors.As(err, &decodeErr) && decodeErr.DecodeFailure() {
		return Classification{Kind: KindDecode, Reason: "decode_error"}
	}
	switch {
	case errors.Is(err, ErrNotBound):
		return Classification{Kind: KindNotBound, Reason: "not_bound"}
	case errors.Is(err, ErrUserDeclined):
		return Classification{Kind: KindUserDeclined, Reason: "user_declined"}
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return Classification{Kind: KindProviderUnavailable, Reason: "circuit_open"}
	case errors.Is(err, ErrProviderUnavailable):
		return Classification{Kind: KindProviderUnavailable, Reason: "provider_unavailable"}
	case errors.Is(err, context.Canceled):
		return Classification{Kind: KindCanceled, Reason: "context_canceled"}
	case errors.Is(err, context.DeadlineExceeded):
		return Classification{Kind: KindTransient, Reason: "context_deadline_exceeded"}
	}

	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		return classifyRPCCode(rpcErr)
	}
	var statusErr *rpc.HTTPStatusError
	if errors.As(err, &statusErr) {
		return classifyHTTPStatus(statusErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTransient, Reason: "net_timeout"}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Kind: KindProviderUnavailable, Reason: "net_" + opErr.Op}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, unavailableMessageTokens) {
		return Classification{Kind: KindProviderUnavailable, Reason: "message_unavailable"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Classification{Kind: KindTransient, Reason: "message_transient"}
	}
	return Classification{Kind: KindUnknown, Reason: "unknown"}
}

func classifyRPCCode(e *rpc.RPCError) Classification {
	switch {
	case e.Code == rpc.CodeUserRejected || e.Code == rpc.CodeUnauthorized:
		return Classification{Kind: KindUserDeclined, Reason: fmt.Sprintf("eip1193_%d", e.Code)}
	case e.Code == rpc.CodeDisconnected || e.Code == rpc.CodeChainDisconnect:
		return Classification{Kind: KindProviderUnavailable, Reason: fmt.Sprintf("eip1193_%d", e.Code)}
	case e.Code == rpc.CodeExecutionRevert || strings.Contains(strings.ToLower(e.Message), "execution reverted"):
		return Classification{Kind: KindReverted, Reason: "jsonrpc_revert"}
	case e.Code == rpc.CodeInternalError || e.Code == -32005:
		return Classification{Kind: KindTransient, Reason: "jsonrpc_server_transient"}
	case e.Code <= -32000 && e.Code >= -32099:
		return Classification{Kind: KindTransient, Reason: "jsonrpc_server_range"}
	}
	return Classification{Kind: KindUnknown, Reason: "jsonrpc_other"}
}

func classifyHTTPStatus(code int) Classification {
	reason := fmt.Sprintf("http_%d", code)
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusGatewayTimeout:
		return Classification{Kind: KindTransient, Reason: reason}
	case code >= 500:
		return Classification{Kind: KindProviderUnavailable, Reason: reason}
	}
	return Classification{Kind: KindUnknown, Reason: reason}
}

// IsUpstreamFailure reports errors that say the endpoint itself is unhealthy,
// as opposed to the endpoint answering with a rejection.
func IsUpstreamFailure(err error) bool {
	switch Classify(err).Kind {
	case KindProviderUnavailable, KindTransient:
		return !errors.Is(err, circuitbreaker.ErrCircuitOpen)
	}
	return false
}

// Translate maps a provider error from a call or submission onto the
// taxonomy's sentinel and typed errors.
func Translate(contract, method string, err error, decode RevertDecoder) error {
	if err == nil {
		return nil
	}
	switch Classify(err).Kind {
	case KindUserDeclined:
		return fmt.Errorf("%s.%s: %w", contract, method, ErrUserDeclined)
	case KindReverted:
		var revert *RevertError
		if errors.As(err, &revert) {
			return err
		}
		return &RevertError{Contract: contract, Method: method, Reason: revertReason(err, decode)}
	case KindProviderUnavailable:
		if errors.Is(err, ErrProviderUnavailable) {
			return fmt.Errorf("%s.%s: %w", contract, method, err)
		}
		return fmt.Errorf("%s.%s: %w: %w", contract, method, ErrProviderUnavailable, err)
	}
	return fmt.Errorf("%s.%s: %w", contract, method, err)
}

// revertReason prefers decoded revert data, then the node's message, then
// nothing (so the generic reason applies).
func revertReason(err error, decode RevertDecoder) string {
	var rpcErr *rpc.RPCError
	if !errors.As(err, &rpcErr) {
		return ""
	}
	if data, ok := rpcErr.RevertData(); ok && decode != nil {
		if reason, ok := decode(data); ok && reason != "" {
			return reason
		}
	}
	msg := strings.TrimSpace(rpcErr.Message)
	if strings.EqualFold(msg, "execution reverted") {
		return ""
	}
	for _, prefix := range []string{"execution reverted: ", "VM Exception while processing transaction: revert "} {
		if len(msg) >= len(prefix) && strings.EqualFold(msg[:len(prefix)], prefix) {
			return strings.TrimSpace(msg[len(prefix):])
		}
	}
	return msg
}

// Describe renders err for an end user: the revert reason, a fixed message
// for the other taxonomy kinds, or the error text.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Error()
	}
	switch Classify(err).Kind {
	case KindUserDeclined:
		return "Request declined in wallet"
	case KindProviderUnavailable:
		return "Wallet provider unavailable"
	case KindNotBound:
		return "Connect a wallet first"
	}
	return err.Error()
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var unavailableMessageTokens = []string{
	"connection refused",
	"no such host",
	"network is unreachable",
	"econnrefused",
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"connection reset",
	"broken pipe",
	"econnreset",
	"too many requests",
	"rate limit",
	"http status 429",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}
