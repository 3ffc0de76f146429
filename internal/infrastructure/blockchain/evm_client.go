package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EVMClient provides EVM blockchain interaction
type EVMClient struct {
	client   *ethclient.Client
	chainID  *big.Int
	rpcURL   string
	callView func(ctx context.Context, to string, data []byte) ([]byte, error)
}

// dialEVMClient and getClientChainID are package-level hooks so tests can
// substitute a fake ethclient.Client without a live RPC endpoint.
var (
	dialEVMClient = ethclient.Dial
	getClientChainID = func(c *ethclient.Client, ctx context.Context) (*big.Int, error) {
		return c.ChainID(ctx)
	}
)

// NewEVMClient creates a new EVM client
func NewEVMClient(rpcURL string) (*EVMClient, error) {
	client, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	chainID, err := getClientChainID(client, context.Background())
	if err != nil {
		return nil, err
	}

	return &EVMClient{
		client:  client,
		chainID: chainID,
		rpcURL:  rpcURL,
	}, nil
}

// NewEVMClientWithCallView builds an EVMClient backed entirely by an
// injected eth_call implementation, bypassing ethclient, so CallView can be
// exercised without a live node (this package's client_factory_test uses
// it). chainID defaults to 1 if nil.
func NewEVMClientWithCallView(chainID *big.Int, callView func(ctx context.Context, to string, data []byte) ([]byte, error)) *EVMClient {
	cid := chainID
	if cid == nil {
		cid = big.NewInt(1)
	}
	return &EVMClient{chainID: cid, callView: callView}
}

// ChainID returns the chain ID
func (c *EVMClient) ChainID() *big.Int {
	return c.chainID
}

// CallView performs an eth_call against to with the given calldata and
// returns the raw return data.
func (c *EVMClient) CallView(ctx context.Context, to string, data []byte) ([]byte, error) {
	if c.callView != nil {
		return c.callView(ctx, to, data)
	}
	addr := common.HexToAddress(to)
	return c.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
}

// GetBalance gets the native token balance of an address
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	return c.client.BalanceAt(ctx, addr, nil)
}

// GetTokenBalance gets the ERC20 token balance of an address
func (c *EVMClient) GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	token := common.HexToAddress(tokenAddress)
	owner := common.HexToAddress(ownerAddress)

	// balanceOf(address) selector: 0x70a08231
	data := append(common.Hex2Bytes("70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)

	msg := ethereum.CallMsg{
		To:   &token,
		Data: data,
	}

	result, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, err
	}

	return new(big.Int).SetBytes(result), nil
}

// GetTransaction gets transaction details
func (c *EVMClient) GetTransaction(ctx context.Context, txHash string) (*types.Transaction, bool, error) {
	hash := common.HexToHash(txHash)
	return c.client.TransactionByHash(ctx, hash)
}

// GetTransactionReceipt gets transaction receipt
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash := common.HexToHash(txHash)
	return c.client.TransactionReceipt(ctx, hash)
}

// GetBlockNumber gets the latest block number
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// BlockNumber satisfies execution.EvmClient - an alias of GetBlockNumber
// kept under the name the executor's narrow interface expects.
func (c *EVMClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// EstimateGas estimates gas for a transaction
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.client.EstimateGas(ctx, msg)
}

// PendingNonceAt returns the next nonce the chain expects for address,
// accounting for transactions still sitting in the mempool. Used as the
// cold-start source of truth when the nonce manager has no durable record
// for a (chain, signer) pair yet.
func (c *EVMClient) PendingNonceAt(ctx context.Context, address string) (uint64, error) {
	return c.client.PendingNonceAt(ctx, common.HexToAddress(address))
}

// SuggestGasPrice returns the network's current suggested gas price.
func (c *EVMClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.client.SuggestGasPrice(ctx)
}

// SendRawTransaction broadcasts an already-signed transaction and returns
// its hash.
func (c *EVMClient) SendRawTransaction(ctx context.Context, tx *types.Transaction) (string, error) {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// Close closes the client connection; it is a no-op when there is no
// underlying ethclient (e.g. a client built by NewEVMClientWithCallView).
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
