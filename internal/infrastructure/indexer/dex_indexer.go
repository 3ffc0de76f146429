package indexer

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/pkg/fixedpoint"
	"xchain-router.backend/internal/routing"
)

// usdPrecisionExp is the decimal-string precision the indexer's price/
// reserve fields are parsed at; matches the 18-decimal convention every EVM
// chain in this ecosystem already uses for ERC20 amounts.
const usdPrecisionExp = 18

const dexPairsQuery = `
query ($dex: String!, $minReserveUsd: BigInt!) {
  dexPairs(where: {dex_eq: $dex, reserveUsd_gte: $minReserveUsd}) {
    token0Kind
    token0Address
    token1Kind
    token1Address
    reserve0
    reserve1
    token0DerivedNative
    token0DerivedUsd
    token1DerivedNative
    token1DerivedUsd
    reserveUsd
    dexName
    dexFeeBps
    routerAddress
    pairAddress
  }
}`

type dexPairRow struct {
	Token0Kind          string `json:"token0Kind"`
	Token0Address       string `json:"token0Address"`
	Token1Kind          string `json:"token1Kind"`
	Token1Address       string `json:"token1Address"`
	Reserve0            string `json:"reserve0"`
	Reserve1            string `json:"reserve1"`
	Token0DerivedNative string `json:"token0DerivedNative"`
	Token0DerivedUsd    string `json:"token0DerivedUsd"`
	Token1DerivedNative string `json:"token1DerivedNative"`
	Token1DerivedUsd    string `json:"token1DerivedUsd"`
	ReserveUsd          string `json:"reserveUsd"`
	DexName             string `json:"dexName"`
	DexFeeBps           uint32 `json:"dexFeeBps"`
	RouterAddress       string `json:"routerAddress"`
	PairAddress         string `json:"pairAddress"`
}

// GetPairsAboveLiquidity implements routing.DexIndexer over the same
// GraphQL endpoint FindAssetIssuance/FindExtrinsic already query - a chain
// indexer reports both extrinsic/issuance history and DEX pool state from
// one schema, so one Client serves both execution.Indexer and
// routing.DexIndexer.
func (c *Client) GetPairsAboveLiquidity(ctx context.Context, chain entities.ChainId, dex string, minReserveUsd int64) ([]routing.DexPair, error) {
	var result struct {
		DexPairs []dexPairRow `json:"dexPairs"`
	}
	vars := map[string]interface{}{"dex": dex, "minReserveUsd": minReserveUsd}
	if err := c.do(ctx, chain, dexPairsQuery, vars, &result); err != nil {
		return nil, err
	}

	pairs := make([]routing.DexPair, 0, len(result.DexPairs))
	for _, row := range result.DexPairs {
		pair, err := toDexPair(chain, row)
		if err != nil {
			return nil, fmt.Errorf("indexer: chain %s dex %s: %w", chain.String(), dex, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func toDexPair(chain entities.ChainId, row dexPairRow) (routing.DexPair, error) {
	token0Kind, err := entities.ParseTokenKind(row.Token0Kind, row.Token0Address)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("token0: %w", err)
	}
	token1Kind, err := entities.ParseTokenKind(row.Token1Kind, row.Token1Address)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("token1: %w", err)
	}
	token0 := entities.TokenId{Chain: chain, Kind: token0Kind}
	token1 := entities.TokenId{Chain: chain, Kind: token1Kind}

	reserve0, err := uint256.FromDecimal(row.Reserve0)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("reserve0 %q: %w", row.Reserve0, err)
	}
	reserve1, err := uint256.FromDecimal(row.Reserve1)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("reserve1 %q: %w", row.Reserve1, err)
	}

	routerAddr, err := entities.ParseAddress20(row.RouterAddress)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("routerAddress %q: %w", row.RouterAddress, err)
	}
	pairAddr, err := entities.ParseAddress20(row.PairAddress)
	if err != nil {
		return routing.DexPair{}, fmt.Errorf("pairAddress %q: %w", row.PairAddress, err)
	}

	return routing.DexPair{
		Token0:              token0,
		Token1:              token1,
		Reserve0:            reserve0,
		Reserve1:            reserve1,
		Token0DerivedNative: fixedpoint.FromStringAndExp(row.Token0DerivedNative, usdPrecisionExp),
		Token0DerivedUsd:    fixedpoint.FromStringAndExp(row.Token0DerivedUsd, usdPrecisionExp),
		Token1DerivedNative: fixedpoint.FromStringAndExp(row.Token1DerivedNative, usdPrecisionExp),
		Token1DerivedUsd:    fixedpoint.FromStringAndExp(row.Token1DerivedUsd, usdPrecisionExp),
		ReserveUsd:          fixedpoint.FromStringAndExp(row.ReserveUsd, usdPrecisionExp),
		DexName:             row.DexName,
		DexFeeBps:           row.DexFeeBps,
		RouterAddress:       routerAddr,
		PairAddress:         pairAddr,
	}, nil
}
