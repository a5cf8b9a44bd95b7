package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, fmt.Errorf("unmarshal chain id: %w", err)
	}
	id, err := ParseHexUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("parse chain id: %w", err)
	}
	return id, nil
}

func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}

	blockNumber, err := ParseHexInt64(hexNum)
	if err != nil {
		return 0, fmt.Errorf("parse block number: %w", err)
	}
	return blockNumber, nil
}

// Accounts lists the addresses the endpoint already exposes, without prompting.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	result, err := c.call(ctx, "eth_accounts", nil)
	if err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return decodeAddresses(result)
}

// RequestAccounts asks the wallet for access. Plain nodes do not implement
// eth_requestAccounts; for those the managed accounts are returned.
func (c *Client) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	result, err := c.call(ctx, "eth_requestAccounts", nil)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == CodeMethodNotFound {
			return c.Accounts(ctx)
		}
		return nil, fmt.Errorf("eth_requestAccounts: %w", err)
	}
	return decodeAddresses(result)
}

func (c *Client) Call(ctx context.Context, args CallArgs, blockTag string) ([]byte, error) {
	if blockTag == "" {
		blockTag = "latest"
	}
	result, err := c.call(ctx, "eth_call", []interface{}{args, blockTag})
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	var out hexutil.Bytes
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return out, nil
}

func (c *Client) EstimateGas(ctx context.Context, args CallArgs) (uint64, error) {
	result, err := c.call(ctx, "eth_estimateGas", []interface{}{args})
	if err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	var gas hexutil.Uint64
	if err := json.Unmarshal(result, &gas); err != nil {
		return 0, fmt.Errorf("unmarshal gas estimate: %w", err)
	}
	return uint64(gas), nil
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	result, err := c.call(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	var price hexutil.Big
	if err := json.Unmarshal(result, &price); err != nil {
		return nil, fmt.Errorf("unmarshal gas price: %w", err)
	}
	return price.ToInt(), nil
}

func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	result, err := c.call(ctx, "eth_getTransactionCount", []interface{}{account, "pending"})
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount(%s): %w", account.Hex(), err)
	}
	var nonce hexutil.Uint64
	if err := json.Unmarshal(result, &nonce); err != nil {
		return 0, fmt.Errorf("unmarshal nonce: %w", err)
	}
	return uint64(nonce), nil
}

// SendTransaction hands an unsigned transaction to the endpoint, which signs
// it with the account named in args.From.
func (c *Client) SendTransaction(ctx context.Context, args CallArgs) (common.Hash, error) {
	result, err := c.call(ctx, "eth_sendTransaction", []interface{}{args})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return hash, nil
}

func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	result, err := c.call(ctx, "eth_sendRawTransaction", []interface{}{hexutil.Encode(raw)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	var hash common.Hash
	if err := json.Unmarshal(result, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return hash, nil
}

// GetTransactionReceipt returns nil while the transaction is still pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*TransactionReceipt, error) {
	result, err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash})
	if err != nil {
		return nil, fmt.Errorf("eth_getTransactionReceipt(%s): %w", hash.Hex(), err)
	}
	if string(result) == "null" {
		return nil, nil
	}

	var receipt TransactionReceipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal transaction receipt: %w", err)
	}

	return &receipt, nil
}

func (c *Client) GetLogs(ctx context.Context, filter LogFilter) ([]*Log, error) {
	result, err := c.call(ctx, "eth_getLogs", []interface{}{filter})
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs: %w", err)
	}

	var logs []*Log
	if err := json.Unmarshal(result, &logs); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}

	return logs, nil
}

func decodeAddresses(raw json.RawMessage) ([]common.Address, error) {
	var addrs []common.Address
	if err := json.Unmarshal(raw, &addrs); err != nil {
		return nil, fmt.Errorf("unmarshal accounts: %w", err)
	}
	return addrs, nil
}

func ParseHexInt64(value string) (int64, error) {
	parsed, err := ParseHexUint64(value)
	if err != nil {
		return 0, err
	}
	return int64(parsed), nil
}

func ParseHexUint64(value string) (uint64, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", value, err)
	}
	return parsed, nil
}

// FormatBlock renders a block number as a JSON-RPC quantity.
func FormatBlock(value uint64) string {
	return fmt.Sprintf("0x%x", value)
}
