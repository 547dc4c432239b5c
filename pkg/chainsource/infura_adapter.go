package chainsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	applerrors "github.com/blockset-corp/chainaudit/internal/errors"
)

// InfuraAdapter implements Adapter against Infura's Ethereum JSON-RPC
// endpoint, using eth_blockNumber and eth_getBlockByNumber.
type InfuraAdapter struct {
	BaseURL    string
	ProjectID  string
	HTTPClient *http.Client
}

// NewInfuraAdapter builds an InfuraAdapter with the shared retry transport.
func NewInfuraAdapter(baseURL, projectID string) *InfuraAdapter {
	return &InfuraAdapter{
		BaseURL:    baseURL,
		ProjectID:  projectID,
		HTTPClient: NewRetryTransport(DefaultTransportConfig()),
	}
}

type jsonRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

type ethBlockResult struct {
	Hash             string   `json:"hash"`
	ParentHash       string   `json:"parentHash"`
	Number           string   `json:"number"`
	Transactions     []string `json:"transactions"`
}

func (a *InfuraAdapter) url() string {
	if a.ProjectID == "" {
		return a.BaseURL
	}
	return strings.TrimRight(a.BaseURL, "/") + "/" + a.ProjectID
}

func (a *InfuraAdapter) call(ctx context.Context, method string, params []interface{}) (*http.Response, jsonRPCResponse, error) {
	reqBody := jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, jsonRPCResponse{}, applerrors.Wrap(err, applerrors.ErrorTypeInternal, "failed to marshal JSON-RPC request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url(), bytes.NewReader(payload))
	if err != nil {
		return nil, jsonRPCResponse{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "failed to build JSON-RPC request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, jsonRPCResponse{}, applerrors.Wrap(err, applerrors.ErrorTypeNetwork, "JSON-RPC request failed")
	}

	if !isGoodStatus(resp.StatusCode) {
		return resp, jsonRPCResponse{}, nil
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return resp, jsonRPCResponse{}, nil
	}
	return resp, rpcResp, nil
}

// GetChain fetches the current block number via eth_blockNumber.
func (a *InfuraAdapter) GetChain(ctx context.Context) (Chain, error) {
	resp, rpcResp, err := a.call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return Chain{}, err
	}
	defer resp.Body.Close()

	if !isGoodStatus(resp.StatusCode) || rpcResp.Error != nil {
		return Chain{HTTPStatus: resp.StatusCode}, nil
	}

	var hexHeight string
	if err := json.Unmarshal(rpcResp.Result, &hexHeight); err != nil {
		return Chain{HTTPStatus: resp.StatusCode}, nil
	}

	height, err := parseHexQuantity(hexHeight)
	if err != nil {
		return Chain{HTTPStatus: resp.StatusCode}, nil
	}
	return Chain{HTTPStatus: resp.StatusCode, ChainHeight: &height}, nil
}

// GetBlock fetches a block by height via eth_getBlockByNumber.
func (a *InfuraAdapter) GetBlock(ctx context.Context, height int64) (Block, error) {
	hexHeight := fmt.Sprintf("0x%x", height)
	resp, rpcResp, err := a.call(ctx, "eth_getBlockByNumber", []interface{}{hexHeight, false})
	if err != nil {
		return Block{}, err
	}
	defer resp.Body.Close()

	if !isGoodStatus(resp.StatusCode) || rpcResp.Error != nil {
		return Block{HTTPStatus: resp.StatusCode}, nil
	}

	var result ethBlockResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return Block{HTTPStatus: resp.StatusCode}, nil
	}

	blockHeight, err := parseHexQuantity(result.Number)
	if err != nil {
		return Block{HTTPStatus: resp.StatusCode}, nil
	}

	txnCount := len(result.Transactions)
	hash, prevHash := result.Hash, result.ParentHash
	return Block{
		HTTPStatus: resp.StatusCode,
		Hash:       &hash,
		PrevHash:   &prevHash,
		Height:     &blockHeight,
		TxnCount:   &txnCount,
	}, nil
}

func parseHexQuantity(hex string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(hex, "0x"), 16, 64)
}
