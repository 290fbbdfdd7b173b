// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package genesis

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var (
	errNoGovExecutors  = errors.New("governance protocol needs at least one executor")
	errNoRelayAddress  = errors.New("relay address is required")
	errInvalidChainID  = errors.New("invalid chain id")
	errNoMasterAddress = errors.New("master contract address is required")
)

// Genesis bootstraps the relay config and the governance protocol.
type Genesis struct {
	// EOBChainID is the origin chain hosting the master contract.
	EOBChainID uint256.Int
	// EOBMasterContract receives outbound governance proposals.
	EOBMasterContract   common.Address
	ConsensusTargetRate uint64
	Transmitters        []common.Address
	Executors           []ids.ID
	// RelayAddress is the governance endpoint, allowed as the target of
	// governance operations.
	RelayAddress ids.ID
}

type genesisJSON struct {
	EOBChainID          string           `json:"eobChainId"`
	EOBMasterContract   common.Address   `json:"eobMasterContract"`
	ConsensusTargetRate uint64           `json:"consensusTargetRate"`
	Transmitters        []common.Address `json:"transmitters"`
	Executors           []common.Hash    `json:"executors"`
	RelayAddress        common.Hash      `json:"relayAddress"`
}

// Parse decodes and verifies a JSON genesis.
func Parse(b []byte) (*Genesis, error) {
	var raw genesisJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal genesis: %w", err)
	}
	chainID, err := uint256.FromDecimal(raw.EOBChainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidChainID, err)
	}
	g := &Genesis{
		EOBChainID:          *chainID,
		EOBMasterContract:   raw.EOBMasterContract,
		ConsensusTargetRate: raw.ConsensusTargetRate,
		Transmitters:        raw.Transmitters,
		RelayAddress:        ids.ID(raw.RelayAddress),
	}
	for _, executor := range raw.Executors {
		g.Executors = append(g.Executors, ids.ID(executor))
	}
	return g, g.Verify()
}

// Bytes returns the JSON form accepted by Parse.
func (g *Genesis) Bytes() ([]byte, error) {
	raw := genesisJSON{
		EOBChainID:          g.EOBChainID.Dec(),
		EOBMasterContract:   g.EOBMasterContract,
		ConsensusTargetRate: g.ConsensusTargetRate,
		Transmitters:        g.Transmitters,
		RelayAddress:        common.Hash(g.RelayAddress),
	}
	for _, executor := range g.Executors {
		raw.Executors = append(raw.Executors, common.Hash(executor))
	}
	return json.MarshalIndent(raw, "", "\t")
}

// Verify checks the fields the registry does not. Rate and list contents
// are validated when the governance protocol is registered.
func (g *Genesis) Verify() error {
	switch {
	case len(g.Executors) == 0:
		return errNoGovExecutors
	case g.RelayAddress == ids.Empty:
		return errNoRelayAddress
	case g.EOBMasterContract == common.Address{}:
		return errNoMasterAddress
	}
	return nil
}
