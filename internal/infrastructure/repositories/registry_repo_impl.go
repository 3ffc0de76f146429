package repositories

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"gorm.io/gorm"

	"xchain-router.backend/internal/domain/entities"
	domainrepos "xchain-router.backend/internal/domain/repositories"
	"xchain-router.backend/internal/routing"
	"xchain-router.backend/pkg/fixedpoint"
)

// chainRegistryRecord is one onboarded chain: its gas-fee estimate and
// optional wrapped-native token, the per-chain facts BuildGraph needs beyond
// the pool data the indexer reports. Mirrors the teacher's
// models.Chain/models.ChainRPC split (one parent row, child rows for a
// one-to-many) - here the one-to-many side is which DEXes to query, in
// chainDexRecord.
type chainRegistryRecord struct {
	ChainKey             string `gorm:"primaryKey;type:varchar(64)"` // entities.ChainId.String()
	Relay                uint8
	IsParachain          bool
	ParachainNum         uint32
	AvgGasFeeNativeWei   string `gorm:"type:varchar(78)"` // decimal uint256
	WrappedNativeKind    string `gorm:"type:varchar(16)"` // "" if this chain has no wrapped native
	WrappedNativeAddress string `gorm:"type:varchar(64)"`
	IsEvm                bool
	EvmRpcURL            string `gorm:"type:varchar(255)"`
	SubstrateRpcURL      string `gorm:"type:varchar(255)"`
	IndexerEndpoint      string `gorm:"type:varchar(255)"`
}

func (chainRegistryRecord) TableName() string { return "chain_registry" }

// chainDexRecord is one (chain, dex) pair to query for pool reserves.
type chainDexRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	ChainKey string `gorm:"type:varchar(64);index"`
	DexName  string `gorm:"type:varchar(64)"`
}

func (chainDexRecord) TableName() string { return "chain_dex_registry" }

// bridgeRegistryRecord is one statically-registered XCM bridge route
// between a (srcChain, srcToken) and (destChain, destToken), mirroring
// routing.BridgeRegistryEntry column-for-field.
type bridgeRegistryRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement"`

	SrcChainKey  string `gorm:"type:varchar(64);index"`
	SrcTokenKind string `gorm:"type:varchar(16)"`
	SrcTokenAddr string `gorm:"type:varchar(64)"`

	DestChainKey  string `gorm:"type:varchar(64)"`
	DestTokenKind string `gorm:"type:varchar(16)"`
	DestTokenAddr string `gorm:"type:varchar(64)"`

	TokenAssetParentCount uint8
	TokenAssetParachain   *uint32

	DestParentCount uint8
	DestParachain   *uint32

	EstimatedGasFeeInDestToken string `gorm:"type:varchar(78)"`
	EstimatedGasFeeUsd         string `gorm:"type:varchar(40)"` // fixedpoint decimal string, exp fixed at registryFixedpointExp
	BridgeFeeInDestToken       string `gorm:"type:varchar(78)"`
	BridgeFeeUsd               string `gorm:"type:varchar(40)"`
	DestChainGasFeeUsd         string `gorm:"type:varchar(40)"`
}

func (bridgeRegistryRecord) TableName() string { return "bridge_registry" }

// registryFixedpointExp is the decimal-string precision every USD-fixedpoint
// column in the registry is stored/parsed at, matching the indexer
// adapter's same convention for derived-price fields.
const registryFixedpointExp = 18

type registryRepo struct {
	db *gorm.DB
}

func NewRegistryRepository(db *gorm.DB) domainrepos.RegistryRepository {
	return &registryRepo{db: db}
}

func (r *registryRepo) LoadBuilderInput(ctx context.Context) (routing.BuilderInput, error) {
	var chainRecs []chainRegistryRecord
	if err := r.db.WithContext(ctx).Find(&chainRecs).Error; err != nil {
		return routing.BuilderInput{}, fmt.Errorf("registry: load chains: %w", err)
	}

	var dexRecs []chainDexRecord
	if err := r.db.WithContext(ctx).Find(&dexRecs).Error; err != nil {
		return routing.BuilderInput{}, fmt.Errorf("registry: load chain dexes: %w", err)
	}
	dexesByChain := make(map[string][]string, len(chainRecs))
	for _, d := range dexRecs {
		dexesByChain[d.ChainKey] = append(dexesByChain[d.ChainKey], d.DexName)
	}

	chains := make([]routing.ChainDexConfig, 0, len(chainRecs))
	for _, rec := range chainRecs {
		cfg, err := toChainDexConfig(rec, dexesByChain[rec.ChainKey])
		if err != nil {
			return routing.BuilderInput{}, fmt.Errorf("registry: chain %s: %w", rec.ChainKey, err)
		}
		chains = append(chains, cfg)
	}

	var bridgeRecs []bridgeRegistryRecord
	if err := r.db.WithContext(ctx).Find(&bridgeRecs).Error; err != nil {
		return routing.BuilderInput{}, fmt.Errorf("registry: load bridges: %w", err)
	}
	bridges := make([]routing.BridgeRegistryEntry, 0, len(bridgeRecs))
	for _, rec := range bridgeRecs {
		entry, err := toBridgeRegistryEntry(rec)
		if err != nil {
			return routing.BuilderInput{}, fmt.Errorf("registry: bridge entry %d: %w", rec.ID, err)
		}
		bridges = append(bridges, entry)
	}

	return routing.BuilderInput{Chains: chains, Bridges: bridges}, nil
}

func (r *registryRepo) LoadChainEndpoints(ctx context.Context) ([]domainrepos.ChainEndpoint, error) {
	var chainRecs []chainRegistryRecord
	if err := r.db.WithContext(ctx).Find(&chainRecs).Error; err != nil {
		return nil, fmt.Errorf("registry: load chain endpoints: %w", err)
	}

	endpoints := make([]domainrepos.ChainEndpoint, 0, len(chainRecs))
	for _, rec := range chainRecs {
		endpoints = append(endpoints, domainrepos.ChainEndpoint{
			Chain: entities.ChainId{
				Relay:        entities.RelayChain(rec.Relay),
				IsParachain:  rec.IsParachain,
				ParachainNum: rec.ParachainNum,
			},
			IsEvm:           rec.IsEvm,
			EvmRpcURL:       rec.EvmRpcURL,
			SubstrateRpcURL: rec.SubstrateRpcURL,
			IndexerEndpoint: rec.IndexerEndpoint,
		})
	}
	return endpoints, nil
}

func toChainDexConfig(rec chainRegistryRecord, dexes []string) (routing.ChainDexConfig, error) {
	chain := entities.ChainId{
		Relay:        entities.RelayChain(rec.Relay),
		IsParachain:  rec.IsParachain,
		ParachainNum: rec.ParachainNum,
	}

	avgGasFee, err := uint256.FromDecimal(rec.AvgGasFeeNativeWei)
	if err != nil {
		return routing.ChainDexConfig{}, fmt.Errorf("avgGasFeeNativeWei %q: %w", rec.AvgGasFeeNativeWei, err)
	}

	cfg := routing.ChainDexConfig{
		Chain:              chain,
		Dexes:              dexes,
		AvgGasFeeNativeWei: avgGasFee,
	}

	if rec.WrappedNativeKind != "" {
		kind, err := entities.ParseTokenKind(rec.WrappedNativeKind, rec.WrappedNativeAddress)
		if err != nil {
			return routing.ChainDexConfig{}, fmt.Errorf("wrappedNative: %w", err)
		}
		wrapped := entities.TokenId{Chain: chain, Kind: kind}
		cfg.WrappedNative = &wrapped
	}

	return cfg, nil
}

func toBridgeRegistryEntry(rec bridgeRegistryRecord) (routing.BridgeRegistryEntry, error) {
	srcChain, err := entities.ParseChainId(rec.SrcChainKey)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("srcChainKey: %w", err)
	}
	destChain, err := entities.ParseChainId(rec.DestChainKey)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("destChainKey: %w", err)
	}

	srcKind, err := entities.ParseTokenKind(rec.SrcTokenKind, rec.SrcTokenAddr)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("srcToken: %w", err)
	}
	destKind, err := entities.ParseTokenKind(rec.DestTokenKind, rec.DestTokenAddr)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("destToken: %w", err)
	}

	estGasFee, err := uint256.FromDecimal(rec.EstimatedGasFeeInDestToken)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("estimatedGasFeeInDestToken: %w", err)
	}
	bridgeFee, err := uint256.FromDecimal(rec.BridgeFeeInDestToken)
	if err != nil {
		return routing.BridgeRegistryEntry{}, fmt.Errorf("bridgeFeeInDestToken: %w", err)
	}

	return routing.BridgeRegistryEntry{
		SrcToken:  entities.TokenId{Chain: srcChain, Kind: srcKind},
		DestToken: entities.TokenId{Chain: destChain, Kind: destKind},
		TokenAssetMultiLocation: routing.MultiLocation{
			ParentCount: rec.TokenAssetParentCount,
			Parachain:   rec.TokenAssetParachain,
		},
		DestMultiLocationTemplate: routing.MultiLocation{
			ParentCount: rec.DestParentCount,
			Parachain:   rec.DestParachain,
		},
		EstimatedGasFeeInDestToken: estGasFee,
		EstimatedGasFeeUsd:         fixedpointFromDecimalString(rec.EstimatedGasFeeUsd),
		BridgeFeeInDestToken:       bridgeFee,
		BridgeFeeUsd:               fixedpointFromDecimalString(rec.BridgeFeeUsd),
		DestChainGasFeeUsd:         fixedpointFromDecimalString(rec.DestChainGasFeeUsd),
	}, nil
}

func fixedpointFromDecimalString(s string) fixedpoint.Decimal {
	return fixedpoint.FromStringAndExp(s, registryFixedpointExp)
}
