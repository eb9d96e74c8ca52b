// Command node starts a luckchain validator node.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/logger"

	"github.com/ddlab/luckchain/config"
	"github.com/ddlab/luckchain/consensus"
	"github.com/ddlab/luckchain/core"
	"github.com/ddlab/luckchain/events"
	"github.com/ddlab/luckchain/gateway"
	"github.com/ddlab/luckchain/indexer"
	"github.com/ddlab/luckchain/rpc"
	"github.com/ddlab/luckchain/storage"
	"github.com/ddlab/luckchain/vm"
	"github.com/ddlab/luckchain/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/ddlab/luckchain/vm/modules/economy"
	_ "github.com/ddlab/luckchain/vm/modules/lottery"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file (json or toml)")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	verbose := flag.Bool("verbose", false, "log to stdout in addition to the log file")
	flag.Parse()

	defer logger.Init("node", *verbose, false, os.Stdout).Close()

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("LUCK_PASSWORD")
	if password == "" {
		logger.Warning("LUCK_PASSWORD not set, keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			logger.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			logger.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		logger.Fatalf("load key: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)

	// ---- initialise state ----
	state := storage.NewStateDB(db)

	// ---- initialise blockchain ----
	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		logger.Fatalf("blockchain init: %v", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			logger.Fatalf("genesis: %v", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			logger.Fatalf("add genesis: %v", err)
		}
		logger.Infof("Genesis block committed: %s", genesisBlock.Hash)
	}

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer ----
	idx := indexer.New(db, emitter)

	// ---- mempool ----
	mempool := core.NewMempool()

	// ---- VM executor ----
	exec := vm.NewExecutor(state, emitter)

	// ---- consensus ----
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, state, idx, cfg.Genesis.ChainID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		logger.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	logger.Infof("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		logger.Info("RPC Bearer token authentication enabled")
	}

	// ---- REST gateway ----
	gwAddr := fmt.Sprintf(":%d", cfg.GatewayPort)
	gw := gateway.New(gwAddr, bc, state, idx)
	if err := gw.Start(); err != nil {
		logger.Fatalf("gateway start: %v", err)
	}
	defer gw.Stop()
	logger.Infof("Gateway listening on %s", gwAddr)

	// ---- consensus loop ----
	interval := time.Duration(cfg.BlockInterval) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(interval, done)
	}()
	logger.Infof("Consensus running (validator: %s)", privKey.Public().Hex())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutting down...")

	// 1. Stop consensus first (no new blocks written)
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: gw.Stop -> rpcServer.Stop -> db.Close
	logger.Info("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
