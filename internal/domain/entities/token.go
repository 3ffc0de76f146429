package entities

import (
	"fmt"

	"github.com/holiman/uint256"
)

// TokenKindTag distinguishes the three ways a token can be identified on a
// chain. Kept as a closed sum type (tag byte + per-tag fields) rather than an
// interface: TokenId must stay a plain comparable value usable as a map key
// for the token graph's vertex table, and a single switch on the tag at call
// sites is enough - there is no per-kind behavior that benefits from virtual
// dispatch.
type TokenKindTag uint8

const (
	TokenKindNative TokenKindTag = iota
	TokenKindFungible20
	TokenKindFungible32
)

// TokenKind is Native | Fungible20(address20) | Fungible32(assetId128).
type TokenKind struct {
	Tag       TokenKindTag
	Address20 Address20
	AssetID   uint256.Int // meaningful only when Tag == TokenKindFungible32
}

func NativeTokenKind() TokenKind { return TokenKind{Tag: TokenKindNative} }

func Fungible20TokenKind(addr Address20) TokenKind {
	return TokenKind{Tag: TokenKindFungible20, Address20: addr}
}

func Fungible32TokenKind(assetID *uint256.Int) TokenKind {
	k := TokenKind{Tag: TokenKindFungible32}
	k.AssetID = *assetID
	return k
}

func (k TokenKind) String() string {
	switch k.Tag {
	case TokenKindNative:
		return "native"
	case TokenKindFungible20:
		return "erc20:" + k.Address20.String()
	case TokenKindFungible32:
		assetID := k.AssetID
		return "asset:" + assetID.Hex()
	default:
		return "unknown"
	}
}

// TokenId = (ChainId, TokenKind). Comparable: usable directly as a map key.
type TokenId struct {
	Chain ChainId
	Kind  TokenKind
}

func (t TokenId) String() string {
	return fmt.Sprintf("%s/%s", t.Chain, t.Kind)
}

// IsNative reports whether this TokenId names the chain's native currency.
func (t TokenId) IsNative() bool { return t.Kind.Tag == TokenKindNative }

// ParseTokenKind decodes the kind/address pair shared by every adapter that
// reads a token kind off the wire or out of storage (the indexer's GraphQL
// rows, the registry repository's config rows): "native" needs no address,
// "fungible20" parses addr as an Address20, "fungible32" parses addr as a
// decimal asset id. This vocabulary is not the one TokenKind.String()
// prints ("native", "erc20:<addr>", "asset:<hex>"), so String() output is
// not accepted here.
func ParseTokenKind(kind, addr string) (TokenKind, error) {
	switch kind {
	case "native":
		return NativeTokenKind(), nil
	case "fungible20":
		a, err := ParseAddress20(addr)
		if err != nil {
			return TokenKind{}, err
		}
		return Fungible20TokenKind(a), nil
	case "fungible32":
		assetID, err := uint256.FromDecimal(addr)
		if err != nil {
			return TokenKind{}, err
		}
		return Fungible32TokenKind(assetID), nil
	default:
		return TokenKind{}, fmt.Errorf("entities: unknown token kind %q", kind)
	}
}
