package routing

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"

	"xchain-router.backend/internal/domain/entities"
)

func usdc() entities.TokenId {
	return entities.TokenId{
		Chain: entities.NewParachainId(entities.RelayPolkadot, 2006),
		Kind:  entities.Fungible20TokenKind(entities.Address20{0x01}),
	}
}

func weth() entities.TokenId {
	return entities.TokenId{
		Chain: entities.NewParachainId(entities.RelayPolkadot, 2006),
		Kind:  entities.Fungible20TokenKind(entities.Address20{0x02}),
	}
}

// Scenario 1 from spec §8: USDC/WETH pool, reserves 1_000_000e6 / 400e18,
// fee 30bps. Quote for 1_000e6 USDC in should land within 10bps of
// 1000*400/1000000 * 0.997 * 1e18 ~= 398.8e15 wei.
func TestQuoteCPMM_Scenario1(t *testing.T) {
	reserve0, _ := uint256.FromDecimal("1000000000000") // 1_000_000 * 1e6
	reserve1, _ := uint256.FromDecimal("400000000000000000000") // 400 * 1e18

	e := Edge{
		Kind:      EdgeKindCPMM,
		Src:       usdc(),
		Dst:       weth(),
		Token0:    usdc(),
		Token1:    weth(),
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		DexFeeBps: 30,
	}
	amountIn, _ := uint256.FromDecimal("1000000000") // 1_000 * 1e6
	out := e.GetQuote(amountIn)

	want, _ := uint256.FromDecimal("398800000000000000") // ~398.8e15... see tolerance below
	// allow 10bps tolerance either side
	diff := new(uint256.Int).Sub(out, want)
	if out.Lt(want) {
		diff = new(uint256.Int).Sub(want, out)
	}
	tolerance := mulRatio(want, 10, basisPointsDenominator)
	assert.True(t, diff.Lte(tolerance), "out=%s want=%s diff=%s tol=%s", out, want, diff, tolerance)
	assert.True(t, out.Lte(reserve1), "quote must never exceed reserveOut")
}

func TestQuoteCPMM_MonotonicInAmountIn(t *testing.T) {
	reserve0 := uint256.NewInt(1_000_000)
	reserve1 := uint256.NewInt(2_000_000)
	e := Edge{
		Kind: EdgeKindCPMM, Src: usdc(), Dst: weth(), Token0: usdc(), Token1: weth(),
		Reserve0: reserve0, Reserve1: reserve1, DexFeeBps: 30,
	}
	prev := uint256.NewInt(0)
	for _, amt := range []uint64{100, 1000, 10000, 100000} {
		out := e.GetQuote(uint256.NewInt(amt))
		assert.True(t, out.Gt(prev), "quote must strictly increase with amountIn")
		assert.True(t, out.Lte(reserve1))
		prev = out
	}
}

func TestWrapUnwrapQuote_Identity(t *testing.T) {
	wrap := Edge{Kind: EdgeKindWrap, Src: usdc(), Dst: weth()}
	amt := uint256.NewInt(12345)
	assert.Equal(t, amt, wrap.GetQuote(amt))

	unwrap := Edge{Kind: EdgeKindUnwrap, Src: weth(), Dst: usdc()}
	assert.Equal(t, amt, unwrap.GetQuote(amt))
}
