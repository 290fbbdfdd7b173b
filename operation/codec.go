// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package operation

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/utils/wrappers"
)

// SigningPrefix domain-separates the digest transmitters sign from the raw
// content hash.
const SigningPrefix = "\x19Ethereum Signed Message:\n32"

var errWordOverflow = errors.New("word does not fit in 64 bits")

// maxEncodedSize only guards the packer against runaway growth.
const maxEncodedSize = 64 * 1024 * 1024

// Bytes returns the canonical encoding of op. Numeric fields and the lengths of
// params and reserved are 32-byte big-endian words.
func (op *Operation) Bytes() ([]byte, error) {
	selector, err := op.Selector.Bytes()
	if err != nil {
		return nil, err
	}

	size := 10*wrappers.WordLen + len(selector) + len(op.Params) + len(op.Reserved)
	p := wrappers.Packer{
		MaxSize: maxEncodedSize,
		Bytes:   make([]byte, 0, size),
	}
	p.PackFixedBytes(op.ProtocolID[:])
	p.PackFixedBytes(op.Meta[:])
	packWord(&p, &op.SrcChainID)
	packUint64Word(&p, op.SrcBlockNumber)
	p.PackFixedBytes(op.SrcOpTxID[:])
	packUint64Word(&p, op.Nonce)
	packWord(&p, &op.DestChainID)
	p.PackFixedBytes(op.ProtocolAddr[:])
	p.PackFixedBytes(selector)
	packUint64Word(&p, uint64(len(op.Params)))
	p.PackFixedBytes(op.Params)
	packUint64Word(&p, uint64(len(op.Reserved)))
	p.PackFixedBytes(op.Reserved)
	return p.Bytes, p.Err
}

// ContentHash is keccak256 of the canonical encoding.
func (op *Operation) ContentHash() (common.Hash, error) {
	b, err := op.Bytes()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

// SigningHash is the digest transmitters sign for op.
func (op *Operation) SigningHash() (common.Hash, error) {
	h, err := op.ContentHash()
	if err != nil {
		return common.Hash{}, err
	}
	return SigningHashOf(h), nil
}

// SigningHashOf wraps an already computed content hash.
func SigningHashOf(contentHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(SigningPrefix), contentHash[:])
}

// Parse is the inverse of Bytes.
func Parse(b []byte) (*Operation, error) {
	p := wrappers.Packer{Bytes: b}
	op := &Operation{}
	copy(op.ProtocolID[:], p.UnpackFixedBytes(ProtocolIDLen))
	copy(op.Meta[:], p.UnpackFixedBytes(len(op.Meta)))
	unpackWord(&p, &op.SrcChainID)
	op.SrcBlockNumber = unpackUint64Word(&p)
	copy(op.SrcOpTxID[:], p.UnpackFixedBytes(common.HashLength))
	op.Nonce = unpackUint64Word(&p)
	unpackWord(&p, &op.DestChainID)
	copy(op.ProtocolAddr[:], p.UnpackFixedBytes(ids.IDLen))

	tag := p.UnpackByte()
	size := p.UnpackByte()
	payload := p.UnpackFixedBytes(int(size))
	if p.Errored() {
		return nil, p.Err
	}
	selector, err := ParseSelector(append([]byte{tag, size}, payload...))
	if err != nil {
		return nil, err
	}
	op.Selector = selector

	op.Params = unpackVarBytes(&p)
	op.Reserved = unpackVarBytes(&p)
	p.Done()
	if p.Errored() {
		return nil, p.Err
	}
	return op, nil
}

func packWord(p *wrappers.Packer, v *uint256.Int) {
	w := v.Bytes32()
	p.PackFixedBytes(w[:])
}

func packUint64Word(p *wrappers.Packer, v uint64) {
	packWord(p, uint256.NewInt(v))
}

func unpackWord(p *wrappers.Packer, v *uint256.Int) {
	w := p.UnpackFixedBytes(wrappers.WordLen)
	if p.Errored() {
		return
	}
	v.SetBytes32(w)
}

func unpackUint64Word(p *wrappers.Packer) uint64 {
	var v uint256.Int
	unpackWord(p, &v)
	if !v.IsUint64() {
		p.Add(errWordOverflow)
		return 0
	}
	return v.Uint64()
}

func unpackVarBytes(p *wrappers.Packer) []byte {
	size := unpackUint64Word(p)
	switch {
	case p.Errored():
		return nil
	case size > uint64(len(p.Bytes)-p.Offset):
		p.Add(wrappers.ErrInsufficientLength)
		return nil
	case size == 0:
		return nil
	}
	return p.UnpackFixedBytes(int(size))
}
