package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
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
	"xchain-router.backend/internal/interfaces/http/handlers"
	"xchain-router.backend/internal/interfaces/http/middleware"
	"xchain-router.backend/internal/nonce"
	"xchain-router.backend/internal/routing"
	"xchain-router.backend/internal/security"
	"xchain-router.backend/pkg/logger"
	"xchain-router.backend/pkg/redis"
)

// Package-level function-variable indirection, the same shape the teacher's
// own cmd/server/main.go uses, so runMainProcess can be exercised with fakes
// standing in for its world-facing dependencies without a live Postgres/Redis.
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
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
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

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("connected to PostgreSQL via GORM")
	}

	encryptionKey, err := hex.DecodeString(cfg.Security.PlanEncryptionKey)
	if err != nil {
		return fmt.Errorf("malformed PLAN_ENCRYPTION_KEY: %w", err)
	}

	registryRepo := repositories.NewRegistryRepository(db)
	planRepo := repositories.NewPlanRepository(db, encryptionKey)

	bootstrapCtx := context.Background()
	endpoints, err := registryRepo.LoadChainEndpoints(bootstrapCtx)
	if err != nil {
		// Same soft-fail posture as the DB ping above: a database hiccup at
		// boot should not crash the process, just leave execution/indexing
		// unable to resolve any chain until the registry is reachable again.
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
	prestart := coordination.NewPrestartEnforcer()

	execAddr20, err := entities.ParseAddress20(cfg.Execution.RouterAddress)
	if err != nil {
		return fmt.Errorf("malformed EXECUTION_ROUTER_ADDRESS: %w", err)
	}
	execAddr := entities.NewAddress20(execAddr20)

	planHandler := handlers.NewPlanHandler(
		registryRepo,
		indexerClient,
		planRepo,
		driver,
		assigner,
		prestart,
		routing.DefaultPathFinderConfig(),
		cfg.Routing.MinPoolReserveUsd,
		execAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	advancerJob := jobs.NewPlanAdvancerJob(planRepo, driver, assigner, cfg.Worker.PollInterval)
	go advancerJob.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerHealthRoute(r)
	registerAPIV1Routes(r, routeDeps{planHandler: planHandler})

	log.Println("registered routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down server...")
		advancerJob.Stop()
		cancel()
	}()

	log.Printf("xchain-router backend starting on port %s", cfg.Server.Port)
	log.Printf("API: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("health: http://localhost:%s/health", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
