// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/utils/wrappers"
)

const (
	codecVersion uint16 = 0

	maxListLen    = 1024
	maxEntrySize  = 64 * 1024 * 1024
	maxOpByteSize = maxEntrySize
)

var (
	errUnknownCodecVersion = errors.New("unknown codec version")
	errListTooLong         = errors.New("list too long")
	errInvalidStatus       = errors.New("invalid status")
)

func newPacker() *wrappers.Packer {
	p := &wrappers.Packer{MaxSize: maxEntrySize}
	p.PackShort(codecVersion)
	return p
}

func newUnpacker(b []byte) *wrappers.Packer {
	p := &wrappers.Packer{Bytes: b}
	if v := p.UnpackShort(); !p.Errored() && v != codecVersion {
		p.Add(fmt.Errorf("%w: %d", errUnknownCodecVersion, v))
	}
	return p
}

func packLen(p *wrappers.Packer, n int) {
	if n > maxListLen {
		p.Add(fmt.Errorf("%w: %d", errListTooLong, n))
		return
	}
	p.PackInt(uint32(n))
}

func unpackLen(p *wrappers.Packer) int {
	n := p.UnpackInt()
	if n > maxListLen {
		p.Add(fmt.Errorf("%w: %d", errListTooLong, n))
		return 0
	}
	return int(n)
}

func packAddresses(p *wrappers.Packer, addrs []common.Address) {
	packLen(p, len(addrs))
	for _, addr := range addrs {
		p.PackFixedBytes(addr[:])
	}
}

func unpackAddresses(p *wrappers.Packer) []common.Address {
	n := unpackLen(p)
	if p.Errored() || n == 0 {
		return nil
	}
	addrs := make([]common.Address, 0, n)
	for range n {
		addrs = append(addrs, common.BytesToAddress(p.UnpackFixedBytes(common.AddressLength)))
	}
	return addrs
}

func packIDs(p *wrappers.Packer, list []ids.ID) {
	packLen(p, len(list))
	for _, id := range list {
		p.PackFixedBytes(id[:])
	}
}

func unpackIDs(p *wrappers.Packer) []ids.ID {
	n := unpackLen(p)
	if p.Errored() || n == 0 {
		return nil
	}
	list := make([]ids.ID, n)
	for i := range list {
		copy(list[i][:], p.UnpackFixedBytes(ids.IDLen))
	}
	return list
}

func marshalProtocolInfo(info *ProtocolInfo) ([]byte, error) {
	p := newPacker()
	p.PackFixedBytes(info.ID[:])
	p.PackLong(info.ConsensusTargetRate)
	packAddresses(p, info.Transmitters)
	packIDs(p, info.Executors)
	packIDs(p, info.AllowedAddresses)
	return p.Bytes, p.Err
}

func unmarshalProtocolInfo(b []byte) (*ProtocolInfo, error) {
	p := newUnpacker(b)
	info := &ProtocolInfo{}
	copy(info.ID[:], p.UnpackFixedBytes(operation.ProtocolIDLen))
	info.ConsensusTargetRate = p.UnpackLong()
	info.Transmitters = unpackAddresses(p)
	info.Executors = unpackIDs(p)
	info.AllowedAddresses = unpackIDs(p)
	p.Done()
	return info, p.Err
}

func marshalOpInfo(info *OpInfo) ([]byte, error) {
	opBytes, err := info.Operation.Bytes()
	if err != nil {
		return nil, err
	}
	p := newPacker()
	p.PackFixedBytes(info.Hash[:])
	p.PackByte(byte(info.Status))
	packAddresses(p, info.Signers)
	p.PackBytes(opBytes)
	return p.Bytes, p.Err
}

func unmarshalOpInfo(b []byte) (*OpInfo, error) {
	p := newUnpacker(b)
	info := &OpInfo{}
	copy(info.Hash[:], p.UnpackFixedBytes(common.HashLength))
	info.Status = Status(p.UnpackByte())
	if !p.Errored() && !info.Status.Valid() {
		p.Add(fmt.Errorf("%w: %d", errInvalidStatus, info.Status))
	}
	info.Signers = unpackAddresses(p)
	opBytes := p.UnpackLimitedBytes(maxOpByteSize)
	p.Done()
	if p.Errored() {
		return nil, p.Err
	}
	op, err := operation.Parse(opBytes)
	if err != nil {
		return nil, err
	}
	info.Operation = *op
	return info, nil
}

func marshalConfig(c *Config) ([]byte, error) {
	p := newPacker()
	chainID := c.EOBChainID.Bytes32()
	p.PackFixedBytes(chainID[:])
	p.PackFixedBytes(c.EOBMasterContract[:])
	p.PackFixedBytes(c.RelayAddress[:])
	p.PackLong(c.Nonce)
	return p.Bytes, p.Err
}

func unmarshalConfig(b []byte) (*Config, error) {
	p := newUnpacker(b)
	c := &Config{}
	chainID := p.UnpackFixedBytes(wrappers.WordLen)
	if !p.Errored() {
		c.EOBChainID.SetBytes32(chainID)
	}
	c.EOBMasterContract = common.BytesToAddress(p.UnpackFixedBytes(common.AddressLength))
	copy(c.RelayAddress[:], p.UnpackFixedBytes(ids.IDLen))
	c.Nonce = p.UnpackLong()
	p.Done()
	return c, p.Err
}
