// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gov decodes and applies the commands carried by operations of the
// governance protocol. Every command names the protocol it mutates, which may
// be the governance protocol itself.
package gov

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
)

// Opcode is the big-endian value of a governance ByCode selector.
type Opcode uint32

const (
	AddAllowedProtocolOp           Opcode = 0x45a004b9
	AddAllowedProtocolAddressOp    Opcode = 0xd296a0ff
	RemoveAllowedProtocolAddressOp Opcode = 0xb0a4ca98
	AddAllowedProposerAddressOp    Opcode = 0xce0940a5
	RemoveAllowedProposerAddressOp Opcode = 0xb8e5f3f4
	AddExecutorOp                  Opcode = 0xe0aafb68
	RemoveExecutorOp               Opcode = 0x04fa384a
	AddTransmittersOp              Opcode = 0x6c5f5666
	RemoveTransmittersOp           Opcode = 0x5206da70
	UpdateTransmittersOp           Opcode = 0x654b46e1
	SetConsensusTargetRateOp       Opcode = 0x970b6109

	// HandleAddAllowedProtocolOp is invoked on the origin master contract
	// after a protocol is added here.
	HandleAddAllowedProtocolOp Opcode = 0xba966e5f
)

func (o Opcode) Selector() operation.Selector {
	return operation.ByCodeUint32(uint32(o))
}

func (o Opcode) String() string {
	switch o {
	case AddAllowedProtocolOp:
		return "addAllowedProtocol"
	case AddAllowedProtocolAddressOp:
		return "addAllowedProtocolAddress"
	case RemoveAllowedProtocolAddressOp:
		return "removeAllowedProtocolAddress"
	case AddAllowedProposerAddressOp:
		return "addAllowedProposerAddress"
	case RemoveAllowedProposerAddressOp:
		return "removeAllowedProposerAddress"
	case AddExecutorOp:
		return "addExecutor"
	case RemoveExecutorOp:
		return "removeExecutor"
	case AddTransmittersOp:
		return "addTransmitters"
	case RemoveTransmittersOp:
		return "removeTransmitters"
	case UpdateTransmittersOp:
		return "updateTransmitters"
	case SetConsensusTargetRateOp:
		return "setConsensusTargetRate"
	case HandleAddAllowedProtocolOp:
		return "handleAddAllowedProtocol"
	default:
		return fmt.Sprintf("0x%08x", uint32(o))
	}
}

// Command is one of the concrete governance commands below.
type Command interface {
	Opcode() Opcode
	// Target is the protocol the command mutates.
	Target() operation.ProtocolID
}

var (
	_ Command = (*AddAllowedProtocol)(nil)
	_ Command = (*AddAllowedProtocolAddress)(nil)
	_ Command = (*RemoveAllowedProtocolAddress)(nil)
	_ Command = (*AddAllowedProposerAddress)(nil)
	_ Command = (*RemoveAllowedProposerAddress)(nil)
	_ Command = (*AddExecutor)(nil)
	_ Command = (*RemoveExecutor)(nil)
	_ Command = (*AddTransmitters)(nil)
	_ Command = (*RemoveTransmitters)(nil)
	_ Command = (*UpdateTransmitters)(nil)
	_ Command = (*SetConsensusTargetRate)(nil)
)

// AddAllowedProtocol registers a new protocol.
type AddAllowedProtocol struct {
	ProtocolID          operation.ProtocolID
	ConsensusTargetRate uint64
	Transmitters        []common.Address
}

type AddAllowedProtocolAddress struct {
	ProtocolID operation.ProtocolID
	Address    ids.ID
}

type RemoveAllowedProtocolAddress struct {
	ProtocolID operation.ProtocolID
	Address    ids.ID
}

type AddAllowedProposerAddress struct {
	ProtocolID operation.ProtocolID
	Proposer   ids.ID
}

type RemoveAllowedProposerAddress struct {
	ProtocolID operation.ProtocolID
	Proposer   ids.ID
}

type AddExecutor struct {
	ProtocolID operation.ProtocolID
	Executor   ids.ID
}

type RemoveExecutor struct {
	ProtocolID operation.ProtocolID
	Executor   ids.ID
}

type AddTransmitters struct {
	ProtocolID   operation.ProtocolID
	Transmitters []common.Address
}

type RemoveTransmitters struct {
	ProtocolID   operation.ProtocolID
	Transmitters []common.Address
}

// UpdateTransmitters removes ToRemove and then adds ToAdd.
type UpdateTransmitters struct {
	ProtocolID operation.ProtocolID
	ToAdd      []common.Address
	ToRemove   []common.Address
}

type SetConsensusTargetRate struct {
	ProtocolID operation.ProtocolID
	Rate       uint64
}

func (*AddAllowedProtocol) Opcode() Opcode           { return AddAllowedProtocolOp }
func (*AddAllowedProtocolAddress) Opcode() Opcode    { return AddAllowedProtocolAddressOp }
func (*RemoveAllowedProtocolAddress) Opcode() Opcode { return RemoveAllowedProtocolAddressOp }
func (*AddAllowedProposerAddress) Opcode() Opcode    { return AddAllowedProposerAddressOp }
func (*RemoveAllowedProposerAddress) Opcode() Opcode { return RemoveAllowedProposerAddressOp }
func (*AddExecutor) Opcode() Opcode                  { return AddExecutorOp }
func (*RemoveExecutor) Opcode() Opcode               { return RemoveExecutorOp }
func (*AddTransmitters) Opcode() Opcode              { return AddTransmittersOp }
func (*RemoveTransmitters) Opcode() Opcode           { return RemoveTransmittersOp }
func (*UpdateTransmitters) Opcode() Opcode           { return UpdateTransmittersOp }
func (*SetConsensusTargetRate) Opcode() Opcode       { return SetConsensusTargetRateOp }

func (c *AddAllowedProtocol) Target() operation.ProtocolID           { return c.ProtocolID }
func (c *AddAllowedProtocolAddress) Target() operation.ProtocolID    { return c.ProtocolID }
func (c *RemoveAllowedProtocolAddress) Target() operation.ProtocolID { return c.ProtocolID }
func (c *AddAllowedProposerAddress) Target() operation.ProtocolID    { return c.ProtocolID }
func (c *RemoveAllowedProposerAddress) Target() operation.ProtocolID { return c.ProtocolID }
func (c *AddExecutor) Target() operation.ProtocolID                  { return c.ProtocolID }
func (c *RemoveExecutor) Target() operation.ProtocolID               { return c.ProtocolID }
func (c *AddTransmitters) Target() operation.ProtocolID              { return c.ProtocolID }
func (c *RemoveTransmitters) Target() operation.ProtocolID           { return c.ProtocolID }
func (c *UpdateTransmitters) Target() operation.ProtocolID           { return c.ProtocolID }
func (c *SetConsensusTargetRate) Target() operation.ProtocolID       { return c.ProtocolID }
