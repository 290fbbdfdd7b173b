// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry applies the mutation rules of the protocol registry on top
// of a state.State. Every method reads the current entry, validates the change
// and writes the result back; nothing is persisted until the caller commits.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/state"
)

const (
	// RateDecimals is the denominator of a consensus target rate.
	RateDecimals uint64 = 10_000

	MaxTransmitters     = 20
	MaxExecutors        = 20
	MaxProposers        = 20
	MaxAllowedAddresses = 20
)

var (
	ErrProtocolNotFound              = errors.New("protocol not found")
	ErrAlreadyRegistered             = errors.New("protocol already registered")
	ErrAlreadyAllowed                = errors.New("already allowed")
	ErrNotFound                      = errors.New("not found")
	ErrTryingToRemoveLastGovExecutor = errors.New("trying to remove the last governance executor")
	ErrInvalidConsensusRate          = errors.New("invalid consensus target rate")
	ErrMaxTransmittersExceeded       = errors.New("max transmitters exceeded")
	ErrMaxExecutorsExceeded          = errors.New("max executors exceeded")
	ErrMaxProposersExceeded          = errors.New("max proposers exceeded")
	ErrMaxAllowedAddressesExceeded   = errors.New("max allowed addresses exceeded")
	ErrInvalidAddress                = errors.New("invalid address")
	ErrEmptyList                     = errors.New("empty list")
)

type Registry struct {
	state state.State
}

func New(s state.State) *Registry {
	return &Registry{state: s}
}

// Protocol returns a copy of the entry for id.
func (r *Registry) Protocol(id operation.ProtocolID) (*state.ProtocolInfo, error) {
	info, err := r.state.GetProtocol(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, id)
	}
	return info, err
}

// RegisterProtocol creates a new entry. Transmitters and executors follow the
// same rules as adding them one by one.
func (r *Registry) RegisterProtocol(
	id operation.ProtocolID,
	rate uint64,
	transmitters []common.Address,
	executors []ids.ID,
) (*state.ProtocolInfo, error) {
	if err := id.Verify(); err != nil {
		return nil, err
	}
	switch _, err := r.state.GetProtocol(id); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}
	if err := VerifyRate(rate); err != nil {
		return nil, err
	}

	info := &state.ProtocolInfo{
		ID:                  id,
		ConsensusTargetRate: rate,
	}
	var err error
	for _, addr := range transmitters {
		if info.Transmitters, err = insertTransmitter(info.Transmitters, addr); err != nil {
			return nil, err
		}
	}
	for _, executor := range executors {
		if info.Executors, err = insert(info.Executors, executor, MaxExecutors, ErrMaxExecutorsExceeded); err != nil {
			return nil, fmt.Errorf("executor %s: %w", executor, err)
		}
	}
	r.state.PutProtocol(info)
	return info.Clone(), nil
}

func (r *Registry) AddTransmitters(id operation.ProtocolID, addrs ...common.Address) error {
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no transmitters to add", ErrEmptyList)
	}
	return r.UpdateTransmitters(id, addrs, nil)
}

func (r *Registry) RemoveTransmitters(id operation.ProtocolID, addrs ...common.Address) error {
	if len(addrs) == 0 {
		return fmt.Errorf("%w: no transmitters to remove", ErrEmptyList)
	}
	return r.UpdateTransmitters(id, nil, addrs)
}

// UpdateTransmitters removes toRemove and then adds toAdd as a single change.
func (r *Registry) UpdateTransmitters(id operation.ProtocolID, toAdd, toRemove []common.Address) error {
	return r.update(id, func(info *state.ProtocolInfo) error {
		var err error
		for _, addr := range toRemove {
			if info.Transmitters, err = remove(info.Transmitters, addr); err != nil {
				return fmt.Errorf("transmitter %s: %w", addr, err)
			}
		}
		for _, addr := range toAdd {
			if info.Transmitters, err = insertTransmitter(info.Transmitters, addr); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Registry) AddExecutor(id operation.ProtocolID, executor ids.ID) error {
	return r.update(id, func(info *state.ProtocolInfo) error {
		var err error
		info.Executors, err = insert(info.Executors, executor, MaxExecutors, ErrMaxExecutorsExceeded)
		if err != nil {
			return fmt.Errorf("executor %s: %w", executor, err)
		}
		return nil
	})
}

// RemoveExecutor refuses to leave the governance protocol without executors.
func (r *Registry) RemoveExecutor(id operation.ProtocolID, executor ids.ID) error {
	return r.update(id, func(info *state.ProtocolInfo) error {
		executors, err := remove(info.Executors, executor)
		if err != nil {
			return fmt.Errorf("executor %s: %w", executor, err)
		}
		if len(executors) == 0 && id == operation.GovernanceProtocolID {
			return ErrTryingToRemoveLastGovExecutor
		}
		info.Executors = executors
		return nil
	})
}

func (r *Registry) AllowAddress(id operation.ProtocolID, addr ids.ID) error {
	return r.update(id, func(info *state.ProtocolInfo) error {
		var err error
		info.AllowedAddresses, err = insert(info.AllowedAddresses, addr, MaxAllowedAddresses, ErrMaxAllowedAddressesExceeded)
		if err != nil {
			return fmt.Errorf("address %s: %w", addr, err)
		}
		return nil
	})
}

func (r *Registry) DenyAddress(id operation.ProtocolID, addr ids.ID) error {
	return r.update(id, func(info *state.ProtocolInfo) error {
		var err error
		info.AllowedAddresses, err = remove(info.AllowedAddresses, addr)
		if err != nil {
			return fmt.Errorf("address %s: %w", addr, err)
		}
		return nil
	})
}

func (r *Registry) SetConsensusTargetRate(id operation.ProtocolID, rate uint64) error {
	if err := VerifyRate(rate); err != nil {
		return err
	}
	return r.update(id, func(info *state.ProtocolInfo) error {
		info.ConsensusTargetRate = rate
		return nil
	})
}

// VerifyRate checks that rate is within [0, RateDecimals].
func VerifyRate(rate uint64) error {
	if rate > RateDecimals {
		return fmt.Errorf("%w: %d > %d", ErrInvalidConsensusRate, rate, RateDecimals)
	}
	return nil
}

func (r *Registry) update(id operation.ProtocolID, f func(*state.ProtocolInfo) error) error {
	info, err := r.Protocol(id)
	if err != nil {
		return err
	}
	if err := f(info); err != nil {
		return err
	}
	r.state.PutProtocol(info)
	return nil
}

func insertTransmitter(list []common.Address, addr common.Address) ([]common.Address, error) {
	list, err := insert(list, addr, MaxTransmitters, ErrMaxTransmittersExceeded)
	if err != nil {
		return nil, fmt.Errorf("transmitter %s: %w", addr, err)
	}
	return list, nil
}

func insert[T comparable](list []T, item T, limit int, errLimit error) ([]T, error) {
	var zero T
	switch {
	case item == zero:
		return nil, ErrInvalidAddress
	case slices.Contains(list, item):
		return nil, ErrAlreadyAllowed
	case len(list) >= limit:
		return nil, errLimit
	}
	return append(list, item), nil
}

func remove[T comparable](list []T, item T) ([]T, error) {
	i := slices.Index(list, item)
	if i < 0 {
		return nil, ErrNotFound
	}
	return slices.Delete(list, i, i+1), nil
}
