package rpc

import (
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// JSON-RPC and EIP-1193 error codes the ledger layer cares about.
const (
	CodeUserRejected     = 4001
	CodeUnauthorized     = 4100
	CodeDisconnected     = 4900
	CodeChainDisconnect  = 4901
	CodeExecutionRevert  = 3
	CodeMethodNotFound   = -32601
	CodeInternalError    = -32603
	CodeResourceNotFound = -32001
)

type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ErrorCode satisfies the conventional rpc.Error interface.
func (e *RPCError) ErrorCode() int {
	return e.Code
}

// RevertData extracts hex-encoded revert data. Nodes report it either as a bare
// string or nested under {"data": ...}.
func (e *RPCError) RevertData() ([]byte, bool) {
	if len(e.Data) == 0 {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		var nested struct {
			Data string `json:"data"`
		}
		if err := json.Unmarshal(e.Data, &nested); err != nil {
			return nil, false
		}
		s = nested.Data
	}
	if !strings.HasPrefix(s, "0x") {
		return nil, false
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// CallArgs is the transaction object shared by eth_call, eth_estimateGas and
// eth_sendTransaction.
type CallArgs struct {
	From     *common.Address `json:"from,omitempty"`
	To       *common.Address `json:"to,omitempty"`
	Gas      *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice *hexutil.Big    `json:"gasPrice,omitempty"`
	Value    *hexutil.Big    `json:"value,omitempty"`
	Data     hexutil.Bytes   `json:"data,omitempty"`
}

type TransactionReceipt struct {
	TransactionHash   string `json:"transactionHash"`
	BlockNumber       string `json:"blockNumber"`
	BlockHash         string `json:"blockHash"`
	TransactionIndex  string `json:"transactionIndex"`
	Status            string `json:"status"`
	From              string `json:"from"`
	To                string `json:"to"`
	GasUsed           string `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice"`
	Logs              []*Log `json:"logs"`
}

// Succeeded reports a post-Byzantium status of 0x1.
func (r *TransactionReceipt) Succeeded() bool {
	return strings.EqualFold(r.Status, "0x1")
}

type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// LogFilter is the eth_getLogs filter object. A nil entry in Topics matches
// any value at that position.
type LogFilter struct {
	Address   []common.Address `json:"address,omitempty"`
	FromBlock string           `json:"fromBlock,omitempty"`
	ToBlock   string           `json:"toBlock,omitempty"`
	Topics    [][]common.Hash  `json:"topics,omitempty"`
}
