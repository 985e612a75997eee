// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"blockwatch.cc/envmon/pkg/chain"
	"blockwatch.cc/envmon/pkg/envmon"
	"blockwatch.cc/envmon/pkg/fhe"
)

type Config struct {
	LogLevel string          `yaml:"log_level"`
	Owner    chain.AccountID `yaml:"owner"`
	Contract chain.AccountID `yaml:"contract"`
	Params   envmon.Params   `yaml:"params"`
	HTTP     HTTPConfig      `yaml:"http"`
	DB       DBConfig        `yaml:"db"`
	Oracle   OracleConfig    `yaml:"oracle"`
	FHE      FHEConfig       `yaml:"fhe"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DBConfig selects the snapshot location. An empty path keeps state in memory.
type DBConfig struct {
	Path string `yaml:"path"`
}

type OracleConfig struct {
	Delay    time.Duration `yaml:"delay"`
	Seed     string        `yaml:"seed"` // hex ed25519 seed
	FailRate float64       `yaml:"fail_rate"`
}

type FHEConfig struct {
	Key      string `yaml:"key"`       // hex
	ProofKey string `yaml:"proof_key"` // hex
}

// Load reads a YAML config file and fills in defaults for missing values.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config for local development without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	def := envmon.DefaultParams()
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Owner == "" {
		c.Owner = "owner.near"
	}
	if c.Contract == "" {
		c.Contract = "envmon.near"
	}
	if c.Params.MinStake == 0 {
		c.Params.MinStake = def.MinStake
	}
	if c.Params.MaxStake == 0 {
		c.Params.MaxStake = def.MaxStake
	}
	if c.Params.MaxTimeout == 0 {
		c.Params.MaxTimeout = def.MaxTimeout
	}
	if c.Params.GatewayTimeout == 0 {
		c.Params.GatewayTimeout = def.GatewayTimeout
	}
	if c.Params.FeeRateBips == 0 {
		c.Params.FeeRateBips = def.FeeRateBips
	}
	if c.Params.NoiseBips == 0 {
		c.Params.NoiseBips = def.NoiseBips
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Oracle.Delay == 0 {
		c.Oracle.Delay = 2 * time.Second
	}
}

func (c *Config) validate() error {
	if !c.Owner.IsValid() {
		return fmt.Errorf("owner %q is not a valid account", c.Owner)
	}
	if !c.Contract.IsValid() {
		return fmt.Errorf("contract %q is not a valid account", c.Contract)
	}
	if err := c.Params.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if c.Oracle.FailRate < 0 || c.Oracle.FailRate > 1 {
		return fmt.Errorf("oracle.fail_rate must be within [0,1]")
	}
	if c.Oracle.Delay < 0 {
		return fmt.Errorf("oracle.delay must not be negative")
	}
	if _, err := c.OracleKey(); err != nil {
		return err
	}
	if _, _, err := c.SealerKeys(); err != nil {
		return err
	}
	return nil
}

// OracleKey decodes the oracle signing seed. It returns nil when unset.
func (c *Config) OracleKey() (ed25519.PrivateKey, error) {
	if c.Oracle.Seed == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(c.Oracle.Seed)
	if err != nil {
		return nil, fmt.Errorf("oracle.seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("oracle.seed must be %d bytes", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SealerKeys decodes the encryption and input proof keys. Both are nil when
// unset.
func (c *Config) SealerKeys() (key, proofKey []byte, err error) {
	if c.FHE.Key == "" && c.FHE.ProofKey == "" {
		return nil, nil, nil
	}
	if key, err = hex.DecodeString(c.FHE.Key); err != nil {
		return nil, nil, fmt.Errorf("fhe.key: %w", err)
	}
	if len(key) != fhe.KeySize {
		return nil, nil, fmt.Errorf("fhe.key must be %d bytes", fhe.KeySize)
	}
	if proofKey, err = hex.DecodeString(c.FHE.ProofKey); err != nil {
		return nil, nil, fmt.Errorf("fhe.proof_key: %w", err)
	}
	if len(proofKey) == 0 {
		return nil, nil, fmt.Errorf("fhe.proof_key is required with fhe.key")
	}
	return key, proofKey, nil
}
