// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signature recovers transmitter addresses from recoverable secp256k1
// signatures over an operation's signing hash.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Len is the size of the r || s || v form.
const Len = crypto.SignatureLength

// recoveryOffset is the legacy Ethereum offset added to the recovery id.
const recoveryOffset = 27

var ErrInvalidSignature = errors.New("invalid signature")

// Signature is an (r, s, v) triple as produced by origin-chain wallets.
// V may carry either the raw recovery id or the +27 legacy form.
type Signature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// FromBytes parses r || s || v.
func FromBytes(b []byte) (Signature, error) {
	if len(b) != Len {
		return Signature{}, fmt.Errorf("%w: expected %d bytes but got %d", ErrInvalidSignature, Len, len(b))
	}
	return Signature{
		R: common.BytesToHash(b[:32]),
		S: common.BytesToHash(b[32:64]),
		V: b[64],
	}, nil
}

// Bytes returns r || s || v with v kept as given.
func (s Signature) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, s.R[:])
	copy(b[32:], s.S[:])
	b[64] = s.V
	return b
}

// recoveryID maps V onto {0, 1}.
func (s Signature) recoveryID() (byte, error) {
	v := s.V
	if v >= recoveryOffset {
		v -= recoveryOffset
	}
	if v > 1 {
		return 0, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, s.V)
	}
	return v, nil
}

// Recover returns the address whose key produced sig over hash. Both s and its
// malleated twin n-s are accepted; callers count signers by address.
func Recover(hash common.Hash, sig Signature) (common.Address, error) {
	v, err := sig.recoveryID()
	if err != nil {
		return common.Address{}, err
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrInvalidSignature)
	}

	raw := sig.Bytes()
	raw[64] = v
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Sign produces the legacy (+27) signature over hash.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) (Signature, error) {
	raw, err := crypto.Sign(hash[:], key)
	if err != nil {
		return Signature{}, err
	}
	sig, err := FromBytes(raw)
	if err != nil {
		return Signature{}, err
	}
	sig.V += recoveryOffset
	return sig, nil
}
