package entities

import "xchain-router.backend/pkg/fixedpoint"

// Vertex is a token graph vertex: a TokenId plus the price anchors the graph
// builder derived for it. derivedNative is native-token-units per one
// on-chain unit of this token (it folds in the token's decimals);
// derivedUsd = derivedNative * usdPerNative. Invariant: for Native tokens,
// DerivedNative == 1.
type Vertex struct {
	ID            TokenId
	DerivedNative fixedpoint.Decimal
	DerivedUsd    fixedpoint.Decimal
}
