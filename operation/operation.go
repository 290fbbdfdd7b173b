// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package operation defines the cross-chain operation and its canonical byte
// encoding. The content hash of that encoding is the only identity an
// operation has: storage keys, signatures and replay protection all hang off
// it.
package operation

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

const ProtocolIDLen = 32

var (
	ErrInvalidSelector   = errors.New("invalid function selector")
	ErrSelectorTooBig    = errors.New("function selector too big")
	ErrProtocolIDTooBig  = errors.New("protocol id too big")
	ErrEmptyProtocolID   = errors.New("empty protocol id")
	ErrInvalidProtocolID = errors.New("protocol id must be printable ASCII followed by null padding")

	// GovernanceProtocolID identifies the protocol whose executed operations
	// mutate the protocol registry.
	GovernanceProtocolID = MustProtocolID("relay-gov")
)

// ProtocolID is a null-padded ASCII identifier.
type ProtocolID [ProtocolIDLen]byte

func NewProtocolID(name string) (ProtocolID, error) {
	var id ProtocolID
	if len(name) > ProtocolIDLen {
		return id, fmt.Errorf("%w: %q", ErrProtocolIDTooBig, name)
	}
	copy(id[:], name)
	if name == "" {
		return id, nil
	}
	if err := id.Verify(); err != nil {
		return ProtocolID{}, err
	}
	return id, nil
}

func MustProtocolID(name string) ProtocolID {
	id, err := NewProtocolID(name)
	if err != nil {
		panic(err)
	}
	return id
}

func (p ProtocolID) IsZero() bool {
	return p == ProtocolID{}
}

// Verify checks that p is non-empty printable ASCII followed only by null
// padding, so String is lossless.
func (p ProtocolID) Verify() error {
	if p.IsZero() {
		return ErrEmptyProtocolID
	}
	end := bytes.IndexByte(p[:], 0)
	if end == -1 {
		end = ProtocolIDLen
	}
	for i, c := range p[:end] {
		if c < 0x20 || c > 0x7e {
			return fmt.Errorf("%w: byte %d is %#x", ErrInvalidProtocolID, i, c)
		}
	}
	if bytes.ContainsFunc(p[end:], func(r rune) bool { return r != 0 }) {
		return fmt.Errorf("%w: data after padding at byte %d", ErrInvalidProtocolID, end)
	}
	return nil
}

func (p ProtocolID) String() string {
	return string(bytes.TrimRight(p[:], "\x00"))
}

// Operation is a cross-chain message. Field order here matches the hashed
// encoding.
type Operation struct {
	ProtocolID     ProtocolID
	Meta           [32]byte
	SrcChainID     uint256.Int
	SrcBlockNumber uint64
	SrcOpTxID      common.Hash
	Nonce          uint64
	DestChainID    uint256.Int
	ProtocolAddr   ids.ID
	Selector       Selector
	Params         []byte
	Reserved       []byte
}

// Verify checks the structural requirements for an operation to be encoded
// and loaded.
func (op *Operation) Verify() error {
	if err := op.ProtocolID.Verify(); err != nil {
		return err
	}
	return op.Selector.Verify()
}

// IsGovernance reports whether op belongs to the governance protocol.
func (op *Operation) IsGovernance() bool {
	return op.ProtocolID == GovernanceProtocolID
}
