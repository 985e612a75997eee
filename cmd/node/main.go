// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

// Command node runs the monitoring contract behind a local HTTP API with a
// simulated decryption oracle. Development use only: /tx takes the caller
// from the unsigned request body and /faucet mints funds for anyone.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/envmon/pkg/bank"
	"blockwatch.cc/envmon/pkg/config"
	"blockwatch.cc/envmon/pkg/db/pebble"
	"blockwatch.cc/envmon/pkg/envmon"
	"blockwatch.cc/envmon/pkg/fhe"
	"blockwatch.cc/envmon/pkg/gateway"
	"blockwatch.cc/envmon/pkg/metrics"
	"blockwatch.cc/envmon/pkg/store"
)

var (
	configPath string
	addr       string
	dbPath     string
	logLevel   string
	flags      = flag.NewFlagSet("node", flag.ContinueOnError)
)

func init() {
	flags.Usage = func() {}
	flags.StringVar(&configPath, "config", os.Getenv("ENVMON_CONFIG"), "YAML config file")
	flags.StringVar(&addr, "addr", os.Getenv("ENVMON_ADDR"), "HTTP listen address")
	flags.StringVar(&dbPath, "db", os.Getenv("ENVMON_DB"), "snapshot database path (empty keeps state in memory)")
	flags.StringVar(&logLevel, "log", os.Getenv("ENVMON_LOG"), "log level")
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			fmt.Printf("Usage: %s [flags]\n", os.Args[0])
			fmt.Println("\nDevelopment node: callers are not authenticated, do not expose it.")
			fmt.Println("\nFlags")
			flags.PrintDefaults()
			return nil
		}
		return err
	}

	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	sealer, oracleKey, err := keys(cfg)
	if err != nil {
		return err
	}

	kv, err := pebble.NewKVStore(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer kv.Close()

	ledger := bank.New(cfg.Contract)
	oracle := gateway.NewSimOracle(sealer, oracleKey)
	m, err := envmon.New(cfg.Owner, cfg.Params, envmon.Deps{
		Capability: sealer,
		Oracle:     oracle,
		Verifier:   gateway.NewSignerSet(oracle.PublicKey()),
		Bank:       ledger,
	})
	if err != nil {
		return err
	}

	snap := store.New(kv)
	switch err := snap.Load(m); {
	case errors.Is(err, store.ErrNoSnapshot):
		log.Infof("Starting with empty contract state, owner %s", cfg.Owner)
	case err != nil:
		return err
	default:
		// the value ledger is not persisted, restore what the contract holds
		held := m.TotalReceived - m.TotalRefunded - m.TotalWithdrawn
		if err := ledger.Mint(cfg.Contract, held); err != nil {
			return err
		}
		oracle.Resume(m.LastRequestId())
	}

	collector := metrics.New()
	collector.Sync(m)
	m.Subscribe(collector)

	node := NewNode(m, ledger, snap, collector)
	oracle.Start(cfg.Oracle.Delay, cfg.Oracle.FailRate, node.Deliver)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           node.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Warnf("Development node: /tx callers are not authenticated")
	log.Infof("Listening on %s (contract %s, oracle delay %s)", cfg.HTTP.Addr, cfg.Contract, cfg.Oracle.Delay)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Infof("Shutting down")
	return nil
}

// keys builds the development sealer and oracle signing key, generating
// ephemeral ones when the config has none.
func keys(cfg *config.Config) (*fhe.Sealer, ed25519.PrivateKey, error) {
	key, proofKey, err := cfg.SealerKeys()
	if err != nil {
		return nil, nil, err
	}
	if key == nil {
		log.Warnf("No fhe keys configured, using ephemeral keys")
		key, proofKey = make([]byte, fhe.KeySize), make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, nil, err
		}
		if _, err := rand.Read(proofKey); err != nil {
			return nil, nil, err
		}
	}
	sealer, err := fhe.NewSealer(key, proofKey)
	if err != nil {
		return nil, nil, err
	}
	oracleKey, err := cfg.OracleKey()
	if err != nil {
		return nil, nil, err
	}
	if oracleKey == nil {
		log.Warnf("No oracle seed configured, using ephemeral key")
		if _, oracleKey, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return nil, nil, err
		}
	}
	return sealer, oracleKey, nil
}
