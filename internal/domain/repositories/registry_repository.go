package repositories

import (
	"context"

	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/routing"
)

// ChainEndpoint is the RPC/indexer connectivity for one onboarded chain -
// the bootstrap-time counterpart to ChainDexConfig's routing-time facts
// about the same chain, split out because BuildGraph never needs an RPC
// URL and the blockchain client factory never needs a gas-fee estimate.
type ChainEndpoint struct {
	Chain            entities.ChainId
	IsEvm            bool
	EvmRpcURL        string // meaningful only when IsEvm
	SubstrateRpcURL  string // meaningful only when !IsEvm
	IndexerEndpoint  string // GraphQL endpoint, both chain kinds
}

// RegistryRepository loads the static configuration bootstrap needs: which
// chains/DEXes to query for pool reserves and their RPC/indexer endpoints,
// and the statically-registered XCM bridge routes between them. Unlike the
// plan blob store, this data changes by operator action (onboarding a
// chain, registering a bridge route), not by the router's own execution,
// so it is read-mostly.
type RegistryRepository interface {
	LoadBuilderInput(ctx context.Context) (routing.BuilderInput, error)
	LoadChainEndpoints(ctx context.Context) ([]ChainEndpoint, error)
}
