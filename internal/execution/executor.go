package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/nonce"
	"xchain-router.backend/internal/security"
	"xchain-router.backend/pkg/fixedpoint"
)

// transferEventTopic0 is keccak256("Transfer(address,address,uint256)"),
// the standard ERC20/ERC721 Transfer event signature hash.
const transferEventTopic0 = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// defaultEvmGasLimit is a conservative fixed gas limit used instead of a
// per-call eth_estimateGas round trip, since every step kind here calls one
// of a small, known set of contract functions whose gas cost does not vary
// enough across calls to justify the extra RPC round trip per submission.
const defaultEvmGasLimit = 300_000

var (
	// ErrUnknownChain means no EVM/Substrate client resolver recognizes the
	// step's chain - a configuration error, not a transient one.
	ErrUnknownChain = errors.New("execution: no chain adapter registered for chain")
	// ErrStepAlreadyTerminal is the programmer-error case: advancing a step
	// whose status has already reached Succeeded/Failed/Dropped.
	ErrStepAlreadyTerminal = errors.New("execution: cannot advance a step already in a terminal state")
)

// EvmClient is the subset of *blockchain.EVMClient the executor drives.
type EvmClient interface {
	ChainID() *big.Int
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, address string) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) (string, error)
	GetTransaction(ctx context.Context, txHash string) (*types.Transaction, bool, error)
	GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
	CallView(ctx context.Context, to string, data []byte) ([]byte, error)
}

// SubstrateRpcClient is the subset of *blockchain.SubstrateClient the
// executor drives for XCM legs.
type SubstrateRpcClient interface {
	SubmitExtrinsic(ctx context.Context, signedExtrinsicHex string) (string, error)
	FinalizedHead(ctx context.Context) (string, error)
	HeaderNumber(ctx context.Context, blockHash string) (uint64, error)
}

// AssetIssuanceQuery parameterizes an indexer lookup for the destination-
// chain half of an XCM transfer's confirmation.
type AssetIssuanceQuery struct {
	Chain          entities.ChainId
	Token          entities.TokenId
	DestAddr       entities.Address
	MinBlock       uint64
	MaxBlock       uint64
	ExpectedAmount *uint256.Int
}

// Indexer answers questions an RPC node alone can't answer cheaply: whether
// an extrinsic landed successfully in a block range, and whether a
// cross-chain asset-issuance event matching an expected transfer has been
// observed yet.
type Indexer interface {
	FindExtrinsic(ctx context.Context, chain entities.ChainId, txHash string, minBlock, maxBlock uint64) (found bool, success bool, err error)
	FindAssetIssuance(ctx context.Context, q AssetIssuanceQuery) (found bool, amountOut *uint256.Int, err error)
}

// EvmClientResolver looks up the EVM RPC adapter for a chain.
type EvmClientResolver func(chain entities.ChainId) (EvmClient, error)

// SubstrateClientResolver looks up the Substrate RPC adapter for a chain.
type SubstrateClientResolver func(chain entities.ChainId) (SubstrateRpcClient, error)

// Executor advances one ExecutionStep by one observable tick, per §4.H: it
// holds no per-plan state of its own - every call is given the step to
// mutate and reads only chain/coordination state.
type Executor struct {
	evmClientFor       EvmClientResolver
	substrateClientFor SubstrateClientResolver
	evmSigner          *security.EvmSigner
	substrateSigner    *security.SubstrateSigner
	nonces             *nonce.Manager
	indexer            Indexer

	txnBlockWindow    uint64
	dexSwapLifeMillis int64
}

// NewExecutor builds an Executor. txnBlockWindow and dexSwapLifeMillis are
// RoutingConfig.TxnBlockWindow and RoutingConfig.DexSwapLifeMillis.
func NewExecutor(
	evmClientFor EvmClientResolver,
	substrateClientFor SubstrateClientResolver,
	evmSigner *security.EvmSigner,
	substrateSigner *security.SubstrateSigner,
	nonces *nonce.Manager,
	indexer Indexer,
	txnBlockWindow uint64,
	dexSwapLifeMillis int64,
) *Executor {
	return &Executor{
		evmClientFor:       evmClientFor,
		substrateClientFor: substrateClientFor,
		evmSigner:          evmSigner,
		substrateSigner:    substrateSigner,
		nonces:             nonces,
		indexer:            indexer,
		txnBlockWindow:     txnBlockWindow,
		dexSwapLifeMillis:  dexSwapLifeMillis,
	}
}

func stepUUIDHex(id [16]byte) string { return hex.EncodeToString(id[:]) }

// Advance drives step by one observable tick. The nonce manager's keys for
// an EVM leg are scoped by chain, signer and the step's own UUID.
func (x *Executor) Advance(ctx context.Context, step *ExecutionStep) error {
	if step.Status().IsTerminal() {
		return ErrStepAlreadyTerminal
	}
	if step.Kind == StepXcmTransfer {
		return x.advanceXcm(ctx, step)
	}
	return x.advanceEvm(ctx, step)
}

func (x *Executor) advanceEvm(ctx context.Context, step *ExecutionStep) error {
	if step.Evm == nil {
		step.Evm = &EvmStatus{}
	}
	switch step.Evm.Phase {
	case EvmNotStarted:
		return x.submitEvm(ctx, step)
	case EvmSubmitted:
		return x.pollEvm(ctx, step)
	default:
		return nil
	}
}

func (x *Executor) submitEvm(ctx context.Context, step *ExecutionStep) error {
	if step.AmountIn == nil || step.AmountIn.IsZero() {
		step.Evm.Phase = EvmDropped
		return nil
	}

	client, err := x.evmClientFor(step.Chain)
	if err != nil {
		return err
	}

	curBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("execution: fetch current block: %w", err)
	}

	signerAddr := x.evmSigner.Address()
	systemNonce, err := client.PendingNonceAt(ctx, signerAddr.String())
	if err != nil {
		return fmt.Errorf("execution: fetch pending nonce: %w", err)
	}

	n, err := x.nonces.GetNonce(ctx, step.Chain.String(), signerAddr.String(), stepUUIDHex(step.UUID), curBlock, systemNonce)
	if err != nil {
		return fmt.Errorf("execution: allocate nonce: %w", err)
	}

	to, value, calldata, err := x.buildEvmCall(step)
	if err != nil {
		return err
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("execution: suggest gas price: %w", err)
	}
	// Double the node's suggested gas price: a step only gets
	// TxnBlockWindow blocks before it is declared Dropped, so submitting
	// at a price likely to be outpaced by the next block's base fee
	// wastes the whole window on a transaction that never gets mined.
	gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(2))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    n,
		GasPrice: gasPrice,
		Gas:      defaultEvmGasLimit,
		To:       &to,
		Value:    value,
		Data:     common.FromHex(calldata),
	})

	signed, err := x.evmSigner.SignTx(tx, client.ChainID())
	if err != nil {
		return err
	}

	txHash, err := client.SendRawTransaction(ctx, signed)
	if err != nil {
		return fmt.Errorf("execution: submit transaction: %w", err)
	}

	step.Evm.Phase = EvmSubmitted
	step.Evm.TxHash = txHash
	step.Evm.EndBlock = curBlock + x.txnBlockWindow
	return nil
}

// buildEvmCall returns (to, value, calldata) for step's contract call.
func (x *Executor) buildEvmCall(step *ExecutionStep) (common.Address, *big.Int, string, error) {
	switch step.Kind {
	case StepEthSend:
		return common.Address(step.Common.DestAddr.A20), step.AmountIn.ToBig(), "", nil

	case StepErc20Transfer:
		return common.Address(step.Token.Kind.Address20), big.NewInt(0),
			buildErc20TransferCalldata(step.Common.DestAddr.A20, step.AmountIn), nil

	case StepEthWrap:
		return common.Address(step.Token.Kind.Address20), step.AmountIn.ToBig(), buildWethDepositCalldata(), nil

	case StepEthUnwrap:
		return common.Address(step.Token.Kind.Address20), big.NewInt(0),
			buildWethWithdrawCalldata(step.AmountIn), nil

	case StepEthDexSwap:
		deadline := uint64(time.Now().Unix()) + uint64(x.dexSwapLifeMillis/1000)
		calldata, err := buildSwapCalldata(step.SwapFunction, step.AmountIn, step.TokenPath, step.Common.DestAddr.A20, deadline)
		if err != nil {
			return common.Address{}, nil, "", err
		}
		value := big.NewInt(0)
		if step.SwapFunction == SwapExactEthForTokens {
			value = step.AmountIn.ToBig()
		}
		return common.Address(step.RouterAddress), value, calldata, nil

	default:
		return common.Address{}, nil, "", fmt.Errorf("execution: step kind %s has no EVM call shape", step.Kind)
	}
}

func (x *Executor) pollEvm(ctx context.Context, step *ExecutionStep) error {
	client, err := x.evmClientFor(step.Chain)
	if err != nil {
		return err
	}

	curBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("execution: fetch current block: %w", err)
	}

	if curBlock > step.Evm.EndBlock {
		step.Evm.Phase = EvmDropped
		step.Common.GasFeeNative = uint256.NewInt(0)
		step.AmountOut = uint256.NewInt(0)
		return x.nonces.DropStep(ctx, step.Chain.String(), x.evmSigner.Address().String(), stepUUIDHex(step.UUID), x.lastKnownNonce(ctx, step))
	}

	receipt, err := client.GetTransactionReceipt(ctx, step.Evm.TxHash)
	if err != nil || receipt == nil {
		// Not yet mined; no state change, the next tick retries.
		return nil
	}

	x.rescaleGasFeeUsd(step, receipt)

	if receipt.Status != types.ReceiptStatusSuccessful {
		step.Evm.Phase = EvmFailed
		return x.finalizeNonce(ctx, step)
	}

	switch step.Kind {
	case StepEthSend:
		ok, err := x.verifyEthSend(ctx, client, step)
		if err != nil {
			return err
		}
		if !ok {
			step.Evm.Phase = EvmFailed
			return x.finalizeNonce(ctx, step)
		}
		step.AmountOut = new(uint256.Int).Set(step.AmountIn)

	case StepErc20Transfer:
		amountOut, ok := verifyErc20TransferReceipt(receipt, step.Token.Kind.Address20, step.Common.DestAddr.A20)
		if !ok || amountOut.Cmp(step.AmountIn) != 0 {
			step.Evm.Phase = EvmFailed
			return x.finalizeNonce(ctx, step)
		}
		step.AmountOut = amountOut

	case StepEthDexSwap:
		amountOut, ok := lastTransferLogAmount(receipt)
		if !ok {
			step.AmountOut = uint256.NewInt(0)
			step.Evm.Phase = EvmFailed
			return x.finalizeNonce(ctx, step)
		}
		step.AmountOut = amountOut

	default: // EthWrap / EthUnwrap preserve amount 1:1.
		step.AmountOut = new(uint256.Int).Set(step.AmountIn)
	}

	step.Evm.Phase = EvmConfirmed
	return x.finalizeNonce(ctx, step)
}

// rescaleGasFeeUsd rescales a step's estimated GasFeeUsd by
// actualNative/estimateNative once the real gas fee is known, via integer
// mul-div (never floating point), per §4.H.
func (x *Executor) rescaleGasFeeUsd(step *ExecutionStep, receipt *types.Receipt) {
	if step.Common.GasFeeNative == nil || step.Common.GasFeeNative.IsZero() {
		return
	}
	effectiveGasPrice, overflow := uint256.FromBig(receipt.EffectiveGasPrice)
	if overflow {
		return
	}
	actualNative := new(uint256.Int).Mul(uint256.NewInt(receipt.GasUsed), effectiveGasPrice)
	newCoef := new(uint256.Int).Div(new(uint256.Int).Mul(step.Common.GasFeeUsd.Coef, actualNative), step.Common.GasFeeNative)
	step.Common.GasFeeUsd = fixedpoint.Decimal{Coef: newCoef, Exp: step.Common.GasFeeUsd.Exp}
	step.Common.GasFeeNative = actualNative
}

// verifyEthSend guards against deposit spoofing on a plain native transfer:
// the receipt alone carries no value/recipient, so the underlying
// transaction must be re-fetched and compared against what this step was
// supposed to send.
func (x *Executor) verifyEthSend(ctx context.Context, client EvmClient, step *ExecutionStep) (bool, error) {
	tx, _, err := client.GetTransaction(ctx, step.Evm.TxHash)
	if err != nil {
		return false, fmt.Errorf("execution: refetch transaction for verification: %w", err)
	}
	if tx.To() == nil || *tx.To() != common.Address(step.Common.DestAddr.A20) {
		return false, nil
	}
	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return false, nil
	}
	return value.Cmp(step.AmountIn) == 0, nil
}

// verifyErc20TransferReceipt finds a Transfer log emitted by tokenAddr
// whose recipient topic matches to, guarding against a spoofed deposit
// (e.g. a third party sending the expected token/amount to the wrong
// escrow, or the step's own contract call targeting the wrong token).
func verifyErc20TransferReceipt(receipt *types.Receipt, tokenAddr, to entities.Address20) (*uint256.Int, bool) {
	wantTopic1 := common.BytesToHash(padAddressTopic(to))
	for _, l := range receipt.Logs {
		if l.Address != common.Address(tokenAddr) {
			continue
		}
		if len(l.Topics) != 3 || l.Topics[0].Hex() != transferEventTopic0 {
			continue
		}
		if l.Topics[2] != wantTopic1 {
			continue
		}
		amt, overflow := uint256.FromBig(new(big.Int).SetBytes(l.Data))
		if overflow {
			return nil, false
		}
		return amt, true
	}
	return nil, false
}

// lastTransferLogAmount extracts the amountOut of a DexSwap step from the
// last Transfer log in event order, per §4.H: the final hop of a (possibly
// multi-pool) swap is always the last Transfer emitted.
func lastTransferLogAmount(receipt *types.Receipt) (*uint256.Int, bool) {
	var lastAmount *uint256.Int
	found := false
	for _, l := range receipt.Logs {
		if len(l.Topics) != 3 || l.Topics[0].Hex() != transferEventTopic0 {
			continue
		}
		amt, overflow := uint256.FromBig(new(big.Int).SetBytes(l.Data))
		if overflow {
			continue
		}
		lastAmount = amt
		found = true
	}
	return lastAmount, found
}

func padAddressTopic(a entities.Address20) []byte {
	out := make([]byte, 32)
	copy(out[12:], a[:])
	return out
}

func (x *Executor) finalizeNonce(ctx context.Context, step *ExecutionStep) error {
	return x.nonces.FinalizeStep(ctx, step.Chain.String(), x.evmSigner.Address().String(), stepUUIDHex(step.UUID))
}

// lastKnownNonce is used only to satisfy DropStep's signature when a step's
// own nonce must be looked up again at drop time; GetNonce's
// existing-assignment case returns it without allocating a new one.
func (x *Executor) lastKnownNonce(ctx context.Context, step *ExecutionStep) uint64 {
	n, _ := x.nonces.GetNonce(ctx, step.Chain.String(), x.evmSigner.Address().String(), stepUUIDHex(step.UUID), step.Evm.EndBlock, 0)
	return n
}

// --- XCM leg ---

func (x *Executor) advanceXcm(ctx context.Context, step *ExecutionStep) error {
	if step.Xcm == nil {
		step.Xcm = &XcmStatus{}
	}
	switch step.Xcm.Phase {
	case XcmNotStarted:
		return x.submitXcm(ctx, step)
	case XcmSubmitted:
		return x.pollXcmSourceLeg(ctx, step)
	case XcmLocalConfirmed:
		return x.pollXcmDestLeg(ctx, step)
	default:
		return nil
	}
}

func (x *Executor) submitXcm(ctx context.Context, step *ExecutionStep) error {
	if step.AmountIn == nil || step.AmountIn.IsZero() {
		step.Xcm.Phase = XcmDropped
		return nil
	}

	client, err := x.substrateClientFor(step.Chain)
	if err != nil {
		return err
	}

	curBlock, err := x.substrateCurrentBlock(ctx, client)
	if err != nil {
		return err
	}

	extrinsic := buildXcmExtrinsicHex(step, x.substrateSigner)
	txHash, err := client.SubmitExtrinsic(ctx, extrinsic)
	if err != nil {
		return fmt.Errorf("execution: submit XCM extrinsic: %w", err)
	}

	step.Xcm.Phase = XcmSubmitted
	step.Xcm.PendingTxnId = txHash
	step.Xcm.PendingEventId = PendingEventId{StartBlock: curBlock}
	step.Xcm.EndBlock = curBlock + x.txnBlockWindow
	return nil
}

func (x *Executor) pollXcmSourceLeg(ctx context.Context, step *ExecutionStep) error {
	client, err := x.substrateClientFor(step.Chain)
	if err != nil {
		return err
	}
	curBlock, err := x.substrateCurrentBlock(ctx, client)
	if err != nil {
		return err
	}
	if curBlock > step.Xcm.EndBlock {
		step.Xcm.Phase = XcmDropped
		step.AmountOut = uint256.NewInt(0)
		return nil
	}

	found, success, err := x.indexer.FindExtrinsic(ctx, step.Chain, step.Xcm.PendingTxnId, step.Xcm.PendingEventId.StartBlock, curBlock)
	if err != nil {
		return nil // indexer request failure: retry on next tick.
	}
	if !found {
		return nil
	}
	if !success {
		step.Xcm.Phase = XcmFailed
		return nil
	}

	step.Xcm.Phase = XcmLocalConfirmed
	step.Xcm.FinalizedTxnId = step.Xcm.PendingTxnId
	step.Xcm.PendingEventId = PendingEventId{StartBlock: curBlock}
	return nil
}

func (x *Executor) pollXcmDestLeg(ctx context.Context, step *ExecutionStep) error {
	destChain := destChainOf(step)
	found, amountOut, err := x.indexer.FindAssetIssuance(ctx, AssetIssuanceQuery{
		Chain:          destChain,
		Token:          step.Token,
		DestAddr:       step.Common.DestAddr,
		MinBlock:       step.Xcm.PendingEventId.StartBlock,
		MaxBlock:       0, // 0 means "up to the indexer's own current head"
		ExpectedAmount: step.AmountIn,
	})
	if err != nil {
		return nil // indexer request failure: retry on next tick.
	}
	if !found {
		return nil
	}

	step.Xcm.Phase = XcmConfirmed
	step.Xcm.RemoteEventId = fmt.Sprintf("%s:%d", step.Xcm.FinalizedTxnId, step.Xcm.PendingEventId.StartBlock)
	step.AmountOut = amountOut
	return nil
}

func destChainOf(step *ExecutionStep) entities.ChainId {
	if step.FullDestMultiLocation.Parachain != nil {
		return entities.NewParachainId(step.Chain.Relay, *step.FullDestMultiLocation.Parachain)
	}
	return entities.NewRelayChainId(step.Chain.Relay)
}

func (x *Executor) substrateCurrentBlock(ctx context.Context, client SubstrateRpcClient) (uint64, error) {
	head, err := client.FinalizedHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("execution: fetch finalized head: %w", err)
	}
	num, err := client.HeaderNumber(ctx, head)
	if err != nil {
		return 0, fmt.Errorf("execution: fetch header number: %w", err)
	}
	return num, nil
}

// buildXcmExtrinsicHex hand-encodes a minimal, length-prefixed transfer
// payload and signs it: no SCALE-codec library exists anywhere in the
// retrieved example pack, so this follows the teacher's own manual
// byte-packing discipline (fixed-width fields, explicit offsets) rather
// than a full runtime-metadata-driven SCALE encoder.
func buildXcmExtrinsicHex(step *ExecutionStep, signer *security.SubstrateSigner) string {
	var payload []byte
	payload = append(payload, step.FullDestMultiLocation.ParentCount)
	amountBytes := step.AmountIn.Bytes32()
	payload = append(payload, amountBytes[:]...)
	if step.FullDestMultiLocation.Beneficiary != nil {
		payload = append(payload, step.FullDestMultiLocation.Beneficiary.A32[:]...)
	}
	sig := signer.Sign(payload)
	return "0x" + hex.EncodeToString(append(signer.PublicKey().A32[:], append(sig, payload...)...))
}
