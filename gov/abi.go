// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
)

var (
	ErrInvalidMethodSelector = errors.New("invalid governance method selector")
	ErrInvalidGovMsg         = errors.New("invalid governance message")
	errUnknownCommand        = errors.New("unknown governance command")
)

// Params are a single ABI tuple whose first element is the target protocol id.
var (
	addProtocolArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "rate", Type: "uint256"},
		abi.ArgumentMarshaling{Name: "transmitters", Type: "address[]"},
	)
	addressArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "address", Type: "bytes"},
	)
	transmittersArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "transmitters", Type: "address[]"},
	)
	updateTransmittersArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "toAdd", Type: "address[]"},
		abi.ArgumentMarshaling{Name: "toRemove", Type: "address[]"},
	)
	rateArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "rate", Type: "uint256"},
	)
	protocolAddedArgs = newTuple(
		abi.ArgumentMarshaling{Name: "protocolID", Type: "bytes32"},
		abi.ArgumentMarshaling{Name: "chainID", Type: "uint256"},
	)
)

// Field names must match the ABI component names in camel case so the
// decoded tuples convert directly.
type (
	addProtocolParams struct {
		ProtocolID   [32]byte
		Rate         *big.Int
		Transmitters []common.Address
	}
	addressParams struct {
		ProtocolID [32]byte
		Address    []byte
	}
	transmittersParams struct {
		ProtocolID   [32]byte
		Transmitters []common.Address
	}
	updateTransmittersParams struct {
		ProtocolID [32]byte
		ToAdd      []common.Address
		ToRemove   []common.Address
	}
	rateParams struct {
		ProtocolID [32]byte
		Rate       *big.Int
	}
	protocolAddedParams struct {
		ProtocolID [32]byte
		ChainID    *big.Int
	}
)

func newTuple(components ...abi.ArgumentMarshaling) abi.Arguments {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

func unpack[T any](args abi.Arguments, data []byte) (T, error) {
	var params T
	values, err := args.Unpack(data)
	if err != nil {
		return params, fmt.Errorf("%w: %w", ErrInvalidGovMsg, err)
	}
	if len(values) != 1 {
		return params, fmt.Errorf("%w: expected 1 value but got %d", ErrInvalidGovMsg, len(values))
	}
	v := reflect.ValueOf(values[0])
	target := reflect.TypeOf(params)
	if !v.Type().ConvertibleTo(target) {
		return params, fmt.Errorf("%w: cannot convert %s", ErrInvalidGovMsg, v.Type())
	}
	return v.Convert(target).Interface().(T), nil
}

// Decode parses the command selected by selector from ABI encoded params.
func Decode(selector operation.Selector, params []byte) (Command, error) {
	if selector.Kind != operation.SelectorByCode {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethodSelector, selector)
	}

	switch op := Opcode(selector.Uint32()); op {
	case AddAllowedProtocolOp:
		p, err := unpack[addProtocolParams](addProtocolArgs, params)
		if err != nil {
			return nil, err
		}
		rate, err := toUint64(p.Rate)
		if err != nil {
			return nil, err
		}
		return &AddAllowedProtocol{
			ProtocolID:          p.ProtocolID,
			ConsensusTargetRate: rate,
			Transmitters:        p.Transmitters,
		}, nil
	case AddAllowedProtocolAddressOp, RemoveAllowedProtocolAddressOp,
		AddAllowedProposerAddressOp, RemoveAllowedProposerAddressOp,
		AddExecutorOp, RemoveExecutorOp:
		p, err := unpack[addressParams](addressArgs, params)
		if err != nil {
			return nil, err
		}
		if len(p.Address) != ids.IDLen {
			return nil, fmt.Errorf("%w: address of %d bytes", ErrInvalidGovMsg, len(p.Address))
		}
		id := operation.ProtocolID(p.ProtocolID)
		addr := ids.ID(p.Address)
		switch op {
		case AddAllowedProtocolAddressOp:
			return &AddAllowedProtocolAddress{ProtocolID: id, Address: addr}, nil
		case RemoveAllowedProtocolAddressOp:
			return &RemoveAllowedProtocolAddress{ProtocolID: id, Address: addr}, nil
		case AddAllowedProposerAddressOp:
			return &AddAllowedProposerAddress{ProtocolID: id, Proposer: addr}, nil
		case RemoveAllowedProposerAddressOp:
			return &RemoveAllowedProposerAddress{ProtocolID: id, Proposer: addr}, nil
		case AddExecutorOp:
			return &AddExecutor{ProtocolID: id, Executor: addr}, nil
		default:
			return &RemoveExecutor{ProtocolID: id, Executor: addr}, nil
		}
	case AddTransmittersOp, RemoveTransmittersOp:
		p, err := unpack[transmittersParams](transmittersArgs, params)
		if err != nil {
			return nil, err
		}
		if op == AddTransmittersOp {
			return &AddTransmitters{ProtocolID: p.ProtocolID, Transmitters: p.Transmitters}, nil
		}
		return &RemoveTransmitters{ProtocolID: p.ProtocolID, Transmitters: p.Transmitters}, nil
	case UpdateTransmittersOp:
		p, err := unpack[updateTransmittersParams](updateTransmittersArgs, params)
		if err != nil {
			return nil, err
		}
		return &UpdateTransmitters{
			ProtocolID: p.ProtocolID,
			ToAdd:      p.ToAdd,
			ToRemove:   p.ToRemove,
		}, nil
	case SetConsensusTargetRateOp:
		p, err := unpack[rateParams](rateArgs, params)
		if err != nil {
			return nil, err
		}
		rate, err := toUint64(p.Rate)
		if err != nil {
			return nil, err
		}
		return &SetConsensusTargetRate{ProtocolID: p.ProtocolID, Rate: rate}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethodSelector, op)
	}
}

// TargetProtocol returns the protocol a governance operation would mutate.
func TargetProtocol(selector operation.Selector, params []byte) (operation.ProtocolID, error) {
	cmd, err := Decode(selector, params)
	if err != nil {
		return operation.ProtocolID{}, err
	}
	return cmd.Target(), nil
}

// Encode returns the selector and params of cmd.
func Encode(cmd Command) (operation.Selector, []byte, error) {
	var (
		params []byte
		err    error
	)
	switch c := cmd.(type) {
	case *AddAllowedProtocol:
		params, err = addProtocolArgs.Pack(addProtocolParams{
			ProtocolID:   c.ProtocolID,
			Rate:         new(big.Int).SetUint64(c.ConsensusTargetRate),
			Transmitters: nonNil(c.Transmitters),
		})
	case *AddAllowedProtocolAddress:
		params, err = packAddress(c.ProtocolID, c.Address)
	case *RemoveAllowedProtocolAddress:
		params, err = packAddress(c.ProtocolID, c.Address)
	case *AddAllowedProposerAddress:
		params, err = packAddress(c.ProtocolID, c.Proposer)
	case *RemoveAllowedProposerAddress:
		params, err = packAddress(c.ProtocolID, c.Proposer)
	case *AddExecutor:
		params, err = packAddress(c.ProtocolID, c.Executor)
	case *RemoveExecutor:
		params, err = packAddress(c.ProtocolID, c.Executor)
	case *AddTransmitters:
		params, err = transmittersArgs.Pack(transmittersParams{
			ProtocolID:   c.ProtocolID,
			Transmitters: nonNil(c.Transmitters),
		})
	case *RemoveTransmitters:
		params, err = transmittersArgs.Pack(transmittersParams{
			ProtocolID:   c.ProtocolID,
			Transmitters: nonNil(c.Transmitters),
		})
	case *UpdateTransmitters:
		params, err = updateTransmittersArgs.Pack(updateTransmittersParams{
			ProtocolID: c.ProtocolID,
			ToAdd:      nonNil(c.ToAdd),
			ToRemove:   nonNil(c.ToRemove),
		})
	case *SetConsensusTargetRate:
		params, err = rateArgs.Pack(rateParams{
			ProtocolID: c.ProtocolID,
			Rate:       new(big.Int).SetUint64(c.Rate),
		})
	default:
		return operation.Selector{}, nil, fmt.Errorf("%w: %T", errUnknownCommand, cmd)
	}
	if err != nil {
		return operation.Selector{}, nil, err
	}
	return cmd.Opcode().Selector(), params, nil
}

func packAddress(id operation.ProtocolID, addr ids.ID) ([]byte, error) {
	return addressArgs.Pack(addressParams{
		ProtocolID: id,
		Address:    addr[:],
	})
}

func toUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in 64 bits", ErrInvalidGovMsg, v)
	}
	return v.Uint64(), nil
}

func nonNil(addrs []common.Address) []common.Address {
	if addrs == nil {
		return []common.Address{}
	}
	return addrs
}
