// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package registry

import (
	"errors"
	"slices"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/utils/wrappers"
)

// proposersKey locates the proposer list inside a protocol's account space.
var proposersKey = []byte("proposers")

// Proposers returns the addresses allowed to propose outbound operations for
// id.
func (r *Registry) Proposers(id operation.ProtocolID) ([]ids.ID, error) {
	if _, err := r.Protocol(id); err != nil {
		return nil, err
	}
	return getProposers(r.state.AccountDB(id))
}

func (r *Registry) IsProposer(id operation.ProtocolID, proposer ids.ID) (bool, error) {
	proposers, err := r.Proposers(id)
	if err != nil {
		return false, err
	}
	return slices.Contains(proposers, proposer), nil
}

func (r *Registry) AddProposer(id operation.ProtocolID, proposer ids.ID) error {
	return r.updateProposers(id, func(proposers []ids.ID) ([]ids.ID, error) {
		return insert(proposers, proposer, MaxProposers, ErrMaxProposersExceeded)
	})
}

func (r *Registry) RemoveProposer(id operation.ProtocolID, proposer ids.ID) error {
	return r.updateProposers(id, func(proposers []ids.ID) ([]ids.ID, error) {
		return remove(proposers, proposer)
	})
}

func (r *Registry) updateProposers(id operation.ProtocolID, f func([]ids.ID) ([]ids.ID, error)) error {
	proposers, err := r.Proposers(id)
	if err != nil {
		return err
	}
	proposers, err = f(proposers)
	if err != nil {
		return err
	}
	return putProposers(r.state.AccountDB(id), proposers)
}

func getProposers(db database.KeyValueReader) ([]ids.ID, error) {
	b, err := db.Get(proposersKey)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := wrappers.Packer{Bytes: b}
	n := int(p.UnpackByte())
	if n > MaxProposers {
		return nil, ErrMaxProposersExceeded
	}
	proposers := make([]ids.ID, n)
	for i := range proposers {
		copy(proposers[i][:], p.UnpackFixedBytes(ids.IDLen))
	}
	p.Done()
	return proposers, p.Err
}

func putProposers(db database.KeyValueWriter, proposers []ids.ID) error {
	p := wrappers.Packer{MaxSize: wrappers.ByteLen + MaxProposers*ids.IDLen}
	p.PackByte(byte(len(proposers)))
	for _, proposer := range proposers {
		p.PackFixedBytes(proposer[:])
	}
	if p.Err != nil {
		return p.Err
	}
	return db.Put(proposersKey, p.Bytes)
}
