// Package security holds process-local signing capability. Secrets never
// flow through the blob store or any persisted entity - they live only in
// the structs this package constructs, the same "secrets stay in Config
// and service structs, never in persisted state" discipline the teacher
// applies to its own JWT signing secret.
package security

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/core/types"

	"xchain-router.backend/internal/domain/entities"
)

// EvmSigner signs EVM transactions with one secp256k1 key.
type EvmSigner struct {
	key     *ecdsa.PrivateKey
	address entities.Address20
}

// NewEvmSignerFromHex builds an EvmSigner from a hex-encoded secp256k1
// private key (no "0x" prefix required).
func NewEvmSignerFromHex(hexKey string) (*EvmSigner, error) {
	key, err := gethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("security: parse EVM signing key: %w", err)
	}
	return &EvmSigner{key: key, address: entities.Address20(gethcrypto.PubkeyToAddress(key.PublicKey))}, nil
}

// Address returns the signer's own EVM address, used as the execution
// plan's operating address on EVM chains.
func (s *EvmSigner) Address() entities.Address20 { return s.address }

// SignTx signs tx for chainID using the chain's current signer scheme
// (EIP-155 replay protection).
func (s *EvmSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("security: sign EVM tx: %w", err)
	}
	return signed, nil
}

// SubstrateSigner signs XCM extrinsic payloads with one Ed25519 key, one of
// the signature schemes a Substrate account can natively use (the other
// common scheme, sr25519, has no Go implementation anywhere in the example
// pack, so Ed25519 - backed by the standard library, itself a real,
// protocol-supported scheme rather than a stand-in - is the one this router
// speaks).
type SubstrateSigner struct {
	key       ed25519.PrivateKey
	publicKey entities.Address32
}

// NewSubstrateSignerFromSeed builds a SubstrateSigner from a 32-byte Ed25519
// seed.
func NewSubstrateSignerFromSeed(seed []byte) (*SubstrateSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("security: substrate signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	var pub entities.Address32
	copy(pub[:], key.Public().(ed25519.PublicKey))
	return &SubstrateSigner{key: key, publicKey: pub}, nil
}

// PublicKey returns the signer's own SS58-style account id, used as the
// execution plan's operating address on Substrate chains.
func (s *SubstrateSigner) PublicKey() entities.Address32 { return s.publicKey }

// Sign signs an already SCALE-encoded extrinsic payload.
func (s *SubstrateSigner) Sign(payload []byte) []byte {
	return ed25519.Sign(s.key, payload)
}
