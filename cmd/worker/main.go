package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"xchain-router.backend/internal/config"
	"xchain-router.backend/internal/coordination"
	"xchain-router.backend/internal/domain/entities"
	"xchain-router.backend/internal/execution"
	"xchain-router.backend/internal/infrastructure/blockchain"
	"xchain-router.backend/internal/infrastructure/indexer"
	"xchain-router.backend/internal/infrastructure/jobs"
	"xchain-router.backend/internal/infrastructure/repositories"
	"xchain-router.backend/internal/nonce"
	"xchain-router.backend/internal/security"
	"xchain-router.backend/pkg/logger"
	"xchain-router.backend/pkg/redis"
)

// A worker process runs nothing but PlanAdvancerJob: one cooperative polling
// loop calling Driver.Advance, per SPEC_FULL.md's component P. Any number of
// these can run alongside any number of cmd/server processes against the
// same Postgres/Redis - coordination.Assigner's lease is what keeps two of
// them from advancing the same plan twice. Same package-level
// function-variable indirection as cmd/server, for the same reason: letting
// runWorkerProcess be exercised with fakes standing in for Postgres/Redis.
var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
)

func main() {
	if err := runWorkerProcess(); err != nil {
		log.Fatal(err)
	}
}

func runWorkerProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		logger.Error(context.Background(), "failed to initialize redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "redis initialized")

	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	encryptionKey, err := hex.DecodeString(cfg.Security.PlanEncryptionKey)
	if err != nil {
		return fmt.Errorf("malformed PLAN_ENCRYPTION_KEY: %w", err)
	}

	registryRepo := repositories.NewRegistryRepository(db)
	planRepo := repositories.NewPlanRepository(db, encryptionKey)

	endpoints, err := registryRepo.LoadChainEndpoints(context.Background())
	if err != nil {
		log.Printf("failed to load chain endpoints: %v (execution/indexing will return errors)", err)
	}

	endpointByChain := make(map[entities.ChainId]repositories.ChainEndpoint, len(endpoints))
	indexerEndpoints := make(map[string]string, len(endpoints))
	for _, ep := range endpoints {
		endpointByChain[ep.Chain] = ep
		if ep.IndexerEndpoint != "" {
			indexerEndpoints[ep.Chain.String()] = ep.IndexerEndpoint
		}
	}

	clientFactory := blockchain.NewClientFactory()

	evmClientFor := func(chain entities.ChainId) (execution.EvmClient, error) {
		ep, ok := endpointByChain[chain]
		if !ok || !ep.IsEvm {
			return nil, fmt.Errorf("no EVM endpoint registered for chain %s", chain.String())
		}
		return clientFactory.GetEVMClient(ep.EvmRpcURL)
	}
	substrateClientFor := func(chain entities.ChainId) (execution.SubstrateRpcClient, error) {
		ep, ok := endpointByChain[chain]
		if !ok || ep.IsEvm {
			return nil, fmt.Errorf("no Substrate endpoint registered for chain %s", chain.String())
		}
		return clientFactory.GetSubstrateClient(ep.SubstrateRpcURL), nil
	}

	indexerClient := indexer.NewClient(indexerEndpoints)

	evmSigner, err := security.NewEvmSignerFromHex(cfg.Execution.EvmSignerKey)
	if err != nil {
		return fmt.Errorf("failed to initialize EVM signer: %w", err)
	}
	substrateSeed, err := hex.DecodeString(cfg.Execution.SubstrateSignerSeed)
	if err != nil {
		return fmt.Errorf("malformed EXECUTION_SUBSTRATE_SIGNER_SEED: %w", err)
	}
	substrateSigner, err := security.NewSubstrateSignerFromSeed(substrateSeed)
	if err != nil {
		return fmt.Errorf("failed to initialize Substrate signer: %w", err)
	}

	nonceManager := nonce.NewManager(redis.GetClient())

	executor := execution.NewExecutor(
		evmClientFor,
		substrateClientFor,
		evmSigner,
		substrateSigner,
		nonceManager,
		indexerClient,
		cfg.Routing.TxnBlockWindow,
		cfg.Routing.DexSwapLifeMillis,
	)
	driver := execution.NewDriver(executor, cfg.Routing.FlatFeeBps)
	assigner := coordination.NewAssigner(coordination.DefaultLeaseDuration)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	advancerJob := jobs.NewPlanAdvancerJob(planRepo, driver, assigner, cfg.Worker.PollInterval)

	done := make(chan struct{})
	go func() {
		advancerJob.Start(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	advancerJob.Stop()
	cancel()
	<-done

	return nil
}
