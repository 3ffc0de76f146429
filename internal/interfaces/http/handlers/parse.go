package handlers

import (
	"encoding/hex"
	"fmt"
	"strings"

	"xchain-router.backend/internal/domain/entities"
)

// parseTokenId builds an entities.TokenId from a request's chain/kind/addr
// triple, delegating the chain half to entities.ParseChainId and the
// token-kind half to entities.ParseTokenKind - the same two codecs the
// registry repository and the indexer adapter already share.
func parseTokenId(chainKey, tokenKind, tokenAddr string) (entities.TokenId, error) {
	chain, err := entities.ParseChainId(chainKey)
	if err != nil {
		return entities.TokenId{}, err
	}
	kind, err := entities.ParseTokenKind(tokenKind, tokenAddr)
	if err != nil {
		return entities.TokenId{}, err
	}
	return entities.TokenId{Chain: chain, Kind: kind}, nil
}

// parseAddress accepts a 20-byte (EVM) or 32-byte (SS58 account id) hex
// address and returns the matching entities.Address union value, inferring
// the scheme from the decoded byte length since the request body has no
// separate "scheme" field.
func parseAddress(s string) (entities.Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return entities.Address{}, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	switch len(b) {
	case 20:
		a, err := entities.ParseAddress20(s)
		if err != nil {
			return entities.Address{}, err
		}
		return entities.NewAddress20(a), nil
	case 32:
		a, err := entities.ParseAddress32(s)
		if err != nil {
			return entities.Address{}, err
		}
		return entities.NewAddress32(a), nil
	default:
		return entities.Address{}, fmt.Errorf("address %q: want 20 or 32 bytes, got %d", s, len(b))
	}
}

// parsePlanUUID decodes a plan's hex-encoded UUID path parameter.
func parsePlanUUID(s string) ([16]byte, error) {
	var out [16]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid plan uuid %q: %w", s, err)
	}
	if len(b) != 16 {
		return out, fmt.Errorf("plan uuid %q: want 16 bytes, got %d", s, len(b))
	}
	copy(out[:], b)
	return out, nil
}
