// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/registry"
)

// Outbox queues governance proposals addressed to the origin chain's master
// contract.
type Outbox interface {
	ProposeToMaster(selector operation.Selector, params []byte) error
}

// Env is everything a command may touch.
type Env struct {
	Registry *registry.Registry
	Outbox   Outbox
	// ChainID of this ledger, announced to the master contract.
	ChainID *uint256.Int
}

// Apply executes cmd against the registry.
func Apply(env Env, cmd Command) error {
	r := env.Registry
	switch c := cmd.(type) {
	case *AddAllowedProtocol:
		if _, err := r.RegisterProtocol(c.ProtocolID, c.ConsensusTargetRate, c.Transmitters, nil); err != nil {
			return err
		}
		params, err := protocolAddedArgs.Pack(protocolAddedParams{
			ProtocolID: c.ProtocolID,
			ChainID:    env.ChainID.ToBig(),
		})
		if err != nil {
			return err
		}
		return env.Outbox.ProposeToMaster(HandleAddAllowedProtocolOp.Selector(), params)
	case *AddAllowedProtocolAddress:
		return r.AllowAddress(c.ProtocolID, c.Address)
	case *RemoveAllowedProtocolAddress:
		return r.DenyAddress(c.ProtocolID, c.Address)
	case *AddAllowedProposerAddress:
		return r.AddProposer(c.ProtocolID, c.Proposer)
	case *RemoveAllowedProposerAddress:
		return r.RemoveProposer(c.ProtocolID, c.Proposer)
	case *AddExecutor:
		return r.AddExecutor(c.ProtocolID, c.Executor)
	case *RemoveExecutor:
		return r.RemoveExecutor(c.ProtocolID, c.Executor)
	case *AddTransmitters:
		return r.AddTransmitters(c.ProtocolID, c.Transmitters...)
	case *RemoveTransmitters:
		return r.RemoveTransmitters(c.ProtocolID, c.Transmitters...)
	case *UpdateTransmitters:
		return r.UpdateTransmitters(c.ProtocolID, c.ToAdd, c.ToRemove)
	case *SetConsensusTargetRate:
		return r.SetConsensusTargetRate(c.ProtocolID, c.Rate)
	default:
		return fmt.Errorf("%w: %T", errUnknownCommand, cmd)
	}
}
