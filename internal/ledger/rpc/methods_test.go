package rpc

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func methodTestClient(handler func(*http.Request) (*http.Response, error)) *Client {
	return NewClient("http://rpc.local", nil, WithHTTPClient(&http.Client{Transport: roundTripFunc(handler)}))
}

func TestChainID(t *testing.T) {
	client := methodTestClient(replyWith(t, "eth_chainId", `"0x7a69"`))

	id, err := client.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), id)
}

func TestGetBlockNumber(t *testing.T) {
	client := methodTestClient(replyWith(t, "eth_blockNumber", `"0x10"`))

	block, err := client.GetBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(16), block)
}

func TestAccounts(t *testing.T) {
	client := methodTestClient(replyWith(t, "eth_accounts", `["0x00000000000000000000000000000000000000a1"]`))

	accts, err := client.Accounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, common.HexToAddress("0xa1"), accts[0])
}

func TestRequestAccounts_FallsBackWhenMethodMissing(t *testing.T) {
	var methods []string
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		methods = append(methods, req.Method)

		resp := Response{JSONRPC: "2.0", ID: req.ID}
		if req.Method == "eth_requestAccounts" {
			resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found"}
		} else {
			resp.Result = json.RawMessage(`["0x00000000000000000000000000000000000000b2"]`)
		}
		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		return jsonHTTPResponse(http.StatusOK, string(raw)), nil
	})

	accts, err := client.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, []string{"eth_requestAccounts", "eth_accounts"}, methods)
}

func TestRequestAccounts_UserRejected(t *testing.T) {
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":4001,"message":"User rejected the request."}}`), nil
	})

	_, err := client.RequestAccounts(context.Background())
	require.Error(t, err)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeUserRejected, rpcErr.Code)
}

func TestCall_EncodesArgsAndBlockTag(t *testing.T) {
	to := common.HexToAddress("0xc0")
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "eth_call", req.Method)
		require.Len(t, req.Params, 2)
		assert.Equal(t, "latest", req.Params[1])
		args, ok := req.Params[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "0x12345678", args["data"])
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x0001"}`), nil
	})

	out, err := client.Call(context.Background(), CallArgs{To: &to, Data: []byte{0x12, 0x34, 0x56, 0x78}}, "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01}, out)
}

func TestGasPriceAndNonce(t *testing.T) {
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req Request
		require.NoError(t, json.Unmarshal(body, &req))
		switch req.Method {
		case "eth_gasPrice":
			return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":"0x3b9aca00"}`), nil
		case "eth_getTransactionCount":
			assert.Equal(t, "pending", req.Params[1])
			return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":2,"result":"0x5"}`), nil
		}
		t.Fatalf("unexpected method %s", req.Method)
		return nil, nil
	})

	price, err := client.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000), price)

	nonce, err := client.PendingNonce(context.Background(), common.HexToAddress("0xa1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), nonce)
}

func TestSendTransaction(t *testing.T) {
	hash := common.HexToHash("0xab").Hex()
	client := methodTestClient(replyWith(t, "eth_sendTransaction", `"`+hash+`"`))

	from := common.HexToAddress("0xa1")
	got, err := client.SendTransaction(context.Background(), CallArgs{From: &from})
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(hash), got)
}

func TestGetTransactionReceipt_Pending(t *testing.T) {
	client := methodTestClient(replyWith(t, "eth_getTransactionReceipt", `null`))

	receipt, err := client.GetTransactionReceipt(context.Background(), common.Hash{})
	require.NoError(t, err)
	assert.Nil(t, receipt)
}

func TestGetTransactionReceipt(t *testing.T) {
	client := methodTestClient(replyWith(t, "eth_getTransactionReceipt", `{
		"transactionHash":"0x01","blockNumber":"0x2a","status":"0x1","logs":[]
	}`))

	receipt, err := client.GetTransactionReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, "0x2a", receipt.BlockNumber)
}

func TestGetLogs(t *testing.T) {
	sig := common.HexToHash("0xfeed")
	client := methodTestClient(func(r *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"topics":[["0x000000000000000000000000000000000000000000000000000000000000feed"],null]`)
		return jsonHTTPResponse(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":[
			{"address":"0xc0","topics":["0xfeed"],"data":"0x","blockNumber":"0x3","transactionHash":"0x09","logIndex":"0x0"}
		]}`), nil
	})

	logs, err := client.GetLogs(context.Background(), LogFilter{
		FromBlock: "0x0",
		ToBlock:   "latest",
		Topics:    [][]common.Hash{{sig}, nil},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "0x3", logs[0].BlockNumber)
}
