package execution

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
)

// evmWordSizeHex is the number of hex characters in one 32-byte ABI word,
// the same constant the teacher keeps in usecases/constants.go for its own
// manual calldata building.
const evmWordSizeHex = 64

// Function selectors (first 4 bytes of keccak256(signature)), named the
// same way the teacher names CreatePaymentSelector.
const (
	selectorErc20Transfer            = "0xa9059cbb" // transfer(address,uint256)
	selectorWethDeposit              = "0xd0e30db0" // deposit()
	selectorWethWithdraw             = "0x2e1a7d4d" // withdraw(uint256)
	selectorSwapExactEthForTokens    = "0x7ff36ab5" // swapExactETHForTokens(uint256,address[],address,uint256)
	selectorSwapExactTokensForEth    = "0x18cbafe5" // swapExactTokensForETH(uint256,uint256,address[],address,uint256)
	selectorSwapExactTokensForTokens = "0x38ed1739" // swapExactTokensForTokens(uint256,uint256,address[],address,uint256)
)

func padLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat("0", length-len(s)) + s
}

func hexWord(hexNoPrefix string) string {
	return padLeft(strings.TrimPrefix(hexNoPrefix, "0x"), evmWordSizeHex)
}

func uintWord(v *uint256.Int) string {
	return hexWord(v.Hex())
}

func addressWord(a entities.Address20) string {
	return hexWord(a.String())
}

// buildErc20TransferCalldata encodes transfer(address to, uint256 amount).
func buildErc20TransferCalldata(to entities.Address20, amount *uint256.Int) string {
	return selectorErc20Transfer + addressWord(to) + uintWord(amount)
}

// buildWethDepositCalldata encodes deposit(), the wrap call: the amount is
// carried by the transaction's value field, not calldata.
func buildWethDepositCalldata() string {
	return selectorWethDeposit
}

// buildWethWithdrawCalldata encodes withdraw(uint256 amount), the unwrap
// call.
func buildWethWithdrawCalldata(amount *uint256.Int) string {
	return selectorWethWithdraw + uintWord(amount)
}

// buildSwapCalldata encodes one of the three Uniswap-v2-shaped swap
// functions chosen by fn. amountOutMin is always 0 (no limit price in this
// version) and deadline is the caller-supplied wall-clock deadline in
// seconds, per the step's own EthDexSwap contract. The dynamic tail
// (address[] path) is laid out ABI-style: an offset word, a length word,
// then one word per path element.
func buildSwapCalldata(fn DexSwapFunction, amountIn *uint256.Int, path []entities.TokenId, to entities.Address20, deadline uint64) (string, error) {
	amountOutMin := uint256.NewInt(0)
	deadlineWord := hexWord(fmt.Sprintf("%x", deadline))
	toWord := addressWord(to)

	pathAddrs := make([]entities.Address20, len(path))
	for i, tok := range path {
		if tok.Kind.Tag == entities.TokenKindNative {
			// The router's own wrapped-native address stands in for a
			// Native leg at the ABI boundary; callers pass the concrete
			// wrapped address via path already resolved to Fungible20,
			// so a bare Native entry here means the caller built the
			// path wrong.
			return "", fmt.Errorf("execution: swap calldata path must be pre-resolved to ERC20 addresses, got native at index %d", i)
		}
		pathAddrs[i] = tok.Kind.Address20
	}

	var pathWords strings.Builder
	pathWords.WriteString(hexWord(fmt.Sprintf("%x", len(pathAddrs))))
	for _, a := range pathAddrs {
		pathWords.WriteString(addressWord(a))
	}

	switch fn {
	case SwapExactEthForTokens:
		// swapExactETHForTokens(uint256 amountOutMin, address[] path, address to, uint256 deadline)
		// amountIn travels as tx.value; the first static word is amountOutMin.
		offsetWord := hexWord(fmt.Sprintf("%x", 4*32))
		return selectorSwapExactEthForTokens + uintWord(amountOutMin) + offsetWord + toWord + deadlineWord + pathWords.String(), nil
	case SwapExactTokensForEth:
		// swapExactTokensForETH(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline)
		offsetWord := hexWord(fmt.Sprintf("%x", 5*32))
		return selectorSwapExactTokensForEth + uintWord(amountIn) + uintWord(amountOutMin) + offsetWord + toWord + deadlineWord + pathWords.String(), nil
	case SwapExactTokensForTokens:
		// swapExactTokensForTokens(uint256 amountIn, uint256 amountOutMin, address[] path, address to, uint256 deadline)
		offsetWord := hexWord(fmt.Sprintf("%x", 5*32))
		return selectorSwapExactTokensForTokens + uintWord(amountIn) + uintWord(amountOutMin) + offsetWord + toWord + deadlineWord + pathWords.String(), nil
	default:
		return "", fmt.Errorf("execution: unknown swap function %d", fn)
	}
}
