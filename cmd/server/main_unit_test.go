package main

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"xchain-router.backend/internal/config"
	plog "xchain-router.backend/pkg/logger"
	"xchain-router.backend/pkg/redis"
)

// initMiniRedis stands up a real (in-memory) Redis server and points
// pkg/redis's global client at it, so the background plan advancer
// goroutine - started before runMainProcess returns - has a live client to
// call instead of a nil one once runServer's stub lets boot complete.
func initMiniRedis(t *testing.T) func(string, string) error {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable in this environment: %v", err)
	}
	t.Cleanup(srv.Close)
	return func(string, string) error {
		redis.SetClient(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
		return nil
	}
}

func withMainHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origInitLog := initLog
	origInitRedis := initRedis
	origOpenDB := openDB
	origRunServer := runServer
	origGetStdDB := getStdDB

	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		initLog = origInitLog
		initRedis = origInitRedis
		openDB = origOpenDB
		runServer = origRunServer
		getStdDB = origGetStdDB
	})
}

// a valid-enough test secp256k1 key (scalar 1) and ed25519 seed (all zero),
// neither of which needs to be cryptographically meaningful for boot tests.
const (
	testEvmSignerKey      = "0000000000000000000000000000000000000000000000000000000000000001"
	testSubstrateSeedHex  = "0000000000000000000000000000000000000000000000000000000000000000"
	testPlanEncryptionKey = "0000000000000000000000000000000000000000000000000000000000000000"
)

func baseTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: "18080",
			Env:  "development",
		},
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "xchain_router",
			SSLMode:  "disable",
		},
		Redis: config.RedisConfig{
			URL:      "redis://localhost:6379",
			Password: "",
		},
		Security: config.SecurityConfig{
			PlanEncryptionKey: testPlanEncryptionKey,
		},
		Execution: config.ExecutionConfig{
			RouterAddress:       "0x00000000000000000000000000000000000000aa",
			EvmSignerKey:        testEvmSignerKey,
			SubstrateSignerSeed: testSubstrateSeedHex,
		},
		Routing: config.RoutingConfig{
			MaxPathLen:          8,
			MaxNumBridges:       2,
			MaxConsecutiveSwaps: 4,
			MinPoolReserveUsd:   12_000,
			FlatFeeBps:          5,
			TxnBlockWindow:      64,
			DexSwapLifeMillis:   480_000,
		},
		Worker: config.WorkerConfig{
			PollInterval:      50 * time.Millisecond,
			LeaseExpiryMillis: 60_000,
		},
	}
}

func openTestSqlite(name string) func(string) (*gorm.DB, error) {
	return func(string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	}
}

func TestRunMainProcess_RedisInitError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = func(string, string) error { return errors.New("redis down") }

	if err := runMainProcess(); err == nil {
		t.Fatal("expected redis init error")
	}
}

func TestRunMainProcess_DBOpenError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	openDB = func(string) (*gorm.DB, error) { return nil, errors.New("db open failed") }

	if err := runMainProcess(); err == nil {
		t.Fatal("expected db open error")
	}
}

func TestRunMainProcess_GetStdDBError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	openDB = openTestSqlite("main_getstdb_error")
	getStdDB = func(*gorm.DB) (*sql.DB, error) { return nil, errors.New("stdb failed") }

	if err := runMainProcess(); err == nil {
		t.Fatal("expected generic database object error")
	}
}

func TestRunMainProcess_MalformedEncryptionKeyError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Security.PlanEncryptionKey = "not-hex"
		return cfg
	}
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	openDB = openTestSqlite("main_bad_enc_key")

	if err := runMainProcess(); err == nil {
		t.Fatal("expected malformed encryption key error")
	}
}

func TestRunMainProcess_MalformedSignerKeyError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Execution.EvmSignerKey = "not-hex"
		return cfg
	}
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	openDB = openTestSqlite("main_bad_signer_key")

	if err := runMainProcess(); err == nil {
		t.Fatal("expected malformed EVM signer key error")
	}
}

func TestRunMainProcess_MalformedRouterAddressError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Execution.RouterAddress = "not-an-address"
		return cfg
	}
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	openDB = openTestSqlite("main_bad_router_addr")

	if err := runMainProcess(); err == nil {
		t.Fatal("expected malformed router address error")
	}
}

func TestRunMainProcess_ServerRunError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = initMiniRedis(t)
	openDB = openTestSqlite("main_server_err")
	runServer = func(*gin.Engine, string) error { return errors.New("listen failed") }

	if err := runMainProcess(); err == nil {
		t.Fatal("expected server run error")
	}
}

func TestRunMainProcess_SuccessPath(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = initMiniRedis(t)
	openDB = openTestSqlite("main_success")
	runServer = func(*gin.Engine, string) error { return nil }

	if err := runMainProcess(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunMainProcess_SuccessPath_WithDotenvLoadError(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return errors.New("dotenv missing") }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = initMiniRedis(t)
	openDB = openTestSqlite("main_success_dotenv_error")
	runServer = func(*gin.Engine, string) error { return nil }

	if err := runMainProcess(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunMainProcess_ProductionModeAndPingWarnPath(t *testing.T) {
	withMainHooks(t)

	loadDotenv = func(...string) error { return nil }
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Server.Env = "production"
		return cfg
	}
	initLog = plog.Init
	initRedis = initMiniRedis(t)
	openDB = func(string) (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file:main_prod_ping_warn?mode=memory&cache=shared"), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close() // force Ping() error branch
		}
		return db, nil
	}
	runServer = func(*gin.Engine, string) error { return nil }

	if err := runMainProcess(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gin.Mode() != gin.ReleaseMode {
		t.Fatalf("expected release mode, got %s", gin.Mode())
	}
}

func TestDefaultOpenDBAndRunServerWrappers_ExecuteBodies(t *testing.T) {
	withMainHooks(t)

	origOpen := openDB
	defer func() { openDB = origOpen }()
	openDB = func(dsn string) (*gorm.DB, error) {
		return origOpen(dsn)
	}
	_, err := openDB("host=localhost port=-1 user=postgres password=postgres dbname=xchain_router sslmode=disable")
	if err == nil {
		t.Fatal("expected openDB wrapper to fail on invalid DSN")
	}

	origRun := runServer
	defer func() { runServer = origRun }()
	runServer = func(r *gin.Engine, port string) error {
		return origRun(r, port)
	}
	engine := gin.New()
	err = runServer(engine, "invalid-port")
	if err == nil {
		t.Fatal("expected runServer wrapper to fail on invalid port")
	}
}
