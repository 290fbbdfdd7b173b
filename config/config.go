// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the relay daemon configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/relay/engine"
)

const (
	DefaultHTTPHost          = "127.0.0.1"
	DefaultHTTPPort          = 9650
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 30 * time.Second
)

var (
	errMissingChainID  = errors.New("chain id is required")
	errInvalidPort     = errors.New("invalid http port")
	errInvalidMaxSigs  = errors.New("max signatures per call must be positive")
	errInvalidDuration = errors.New("timeouts must be positive")
)

type Config struct {
	HTTPHost          string        `json:"httpHost"`
	HTTPPort          uint16        `json:"httpPort"`
	// AllowedOrigins enables CORS for the listed origins. Empty disables it.
	AllowedOrigins    []string      `json:"allowedOrigins"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout"`

	// ChainID of the ledger, in decimal.
	ChainID              string `json:"chainId"`
	MaxSignaturesPerCall int    `json:"maxSignaturesPerCall"`

	// DataDir holds the database. An empty DataDir keeps state in memory.
	DataDir string `json:"dataDir"`
	// GenesisFile is only read when the database has not been initialized.
	GenesisFile string `json:"genesisFile"`
}

func Default() Config {
	return Config{
		HTTPHost:             DefaultHTTPHost,
		HTTPPort:             DefaultHTTPPort,
		ShutdownTimeout:      DefaultShutdownTimeout,
		ReadHeaderTimeout:    DefaultReadHeaderTimeout,
		MaxSignaturesPerCall: engine.DefaultMaxSignaturesPerCall,
	}
}

// Parse overlays the JSON document b on the defaults.
func Parse(b []byte) (Config, error) {
	c := Default()
	if len(b) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch {
	case c.ChainID == "":
		return errMissingChainID
	case c.HTTPPort == 0:
		return errInvalidPort
	case c.MaxSignaturesPerCall <= 0:
		return errInvalidMaxSigs
	case c.ShutdownTimeout <= 0 || c.ReadHeaderTimeout <= 0:
		return errInvalidDuration
	}
	_, err := c.ParseChainID()
	return err
}

func (c *Config) ParseChainID() (*uint256.Int, error) {
	id, err := uint256.FromDecimal(c.ChainID)
	if err != nil {
		return nil, fmt.Errorf("invalid chain id %q: %w", c.ChainID, err)
	}
	return id, nil
}

func (c *Config) Address() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(int(c.HTTPPort)))
}

// EngineConfig returns the engine settings. Validate must have passed.
func (c *Config) EngineConfig() (engine.Config, error) {
	chainID, err := c.ParseChainID()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		ChainID:              *chainID,
		MaxSignaturesPerCall: c.MaxSignaturesPerCall,
	}, nil
}
