package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// SubstrateClient talks to a Substrate node's JSON-RPC endpoint directly.
// The example pack carries no Substrate/SCALE client library, so this
// speaks the wire protocol with net/http + encoding/json: every call this
// router needs (chain head, finalized head, a storage read, submitting an
// already-encoded extrinsic) maps onto a single plain JSON-RPC method and
// does not need a full SCALE-typed client.
type SubstrateClient struct {
	httpClient *http.Client
	rpcURL     string
	idCounter  int64
}

// NewSubstrateClient creates a new Substrate JSON-RPC client.
func NewSubstrateClient(rpcURL string) *SubstrateClient {
	return &SubstrateClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		rpcURL:     rpcURL,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *SubstrateClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	id := atomic.AddInt64(&c.idCounter, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("substrate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("substrate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("substrate: rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("substrate: decode response for %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("substrate: %s returned error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// FinalizedHead returns the hash of the chain's latest finalized block,
// used to decide whether an XCM step's source leg has locally confirmed.
func (c *SubstrateClient) FinalizedHead(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, "chain_getFinalizedHead", nil, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// HeaderNumber returns the block number for a given block hash.
func (c *SubstrateClient) HeaderNumber(ctx context.Context, blockHash string) (uint64, error) {
	var header struct {
		Number string `json:"number"`
	}
	if err := c.call(ctx, "chain_getHeader", []interface{}{blockHash}, &header); err != nil {
		return 0, err
	}
	var n uint64
	if _, err := fmt.Sscanf(header.Number, "0x%x", &n); err != nil {
		return 0, fmt.Errorf("substrate: parse block number %q: %w", header.Number, err)
	}
	return n, nil
}

// SubmitExtrinsic broadcasts an already SCALE-encoded, hex-prefixed
// extrinsic and returns its transaction hash.
func (c *SubstrateClient) SubmitExtrinsic(ctx context.Context, signedExtrinsicHex string) (string, error) {
	var hash string
	if err := c.call(ctx, "author_submitExtrinsic", []interface{}{signedExtrinsicHex}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetStorage reads a single storage value by its already-encoded storage key.
func (c *SubstrateClient) GetStorage(ctx context.Context, storageKeyHex string) (string, error) {
	var value string
	if err := c.call(ctx, "state_getStorage", []interface{}{storageKeyHex}, &value); err != nil {
		return "", err
	}
	return value, nil
}
