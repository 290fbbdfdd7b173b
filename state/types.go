// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
)

// Status is the lifecycle position of a loaded operation. It only moves
// forward.
type Status uint8

const (
	StatusNone Status = iota
	StatusLoaded
	StatusSigned
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusLoaded:
		return "loaded"
	case StatusSigned:
		return "signed"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

func (s Status) Valid() bool {
	return s <= StatusExecuted
}

// ProtocolInfo is the registry entry of a protocol.
type ProtocolInfo struct {
	ID                  operation.ProtocolID
	ConsensusTargetRate uint64
	Transmitters        []common.Address
	Executors           []ids.ID
	AllowedAddresses    []ids.ID
}

func (p *ProtocolInfo) IsTransmitter(addr common.Address) bool {
	return slices.Contains(p.Transmitters, addr)
}

func (p *ProtocolInfo) IsExecutor(id ids.ID) bool {
	return slices.Contains(p.Executors, id)
}

func (p *ProtocolInfo) IsAllowedAddress(id ids.ID) bool {
	return slices.Contains(p.AllowedAddresses, id)
}

func (p *ProtocolInfo) Clone() *ProtocolInfo {
	return &ProtocolInfo{
		ID:                  p.ID,
		ConsensusTargetRate: p.ConsensusTargetRate,
		Transmitters:        slices.Clone(p.Transmitters),
		Executors:           slices.Clone(p.Executors),
		AllowedAddresses:    slices.Clone(p.AllowedAddresses),
	}
}

// OpInfo is the ledger entry of a loaded operation.
type OpInfo struct {
	Hash      common.Hash
	Status    Status
	Signers   []common.Address
	Operation operation.Operation
}

func (o *OpInfo) SignatureCount() uint64 {
	return uint64(len(o.Signers))
}

func (o *OpInfo) HasSigner(addr common.Address) bool {
	return slices.Contains(o.Signers, addr)
}

func (o *OpInfo) Clone() *OpInfo {
	c := *o
	c.Signers = slices.Clone(o.Signers)
	c.Operation.Params = slices.Clone(o.Operation.Params)
	c.Operation.Reserved = slices.Clone(o.Operation.Reserved)
	return &c
}

// Config is the relay-wide configuration written once at initialization.
type Config struct {
	// EOBChainID is the origin chain hosting the master contract.
	EOBChainID uint256.Int
	// EOBMasterContract receives outbound governance proposals.
	EOBMasterContract common.Address
	// RelayAddress is the only target governance operations may name.
	RelayAddress ids.ID
	// Nonce assigned to the next outbound proposal.
	Nonce uint64
}
