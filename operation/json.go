// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package operation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var errAmbiguousSelector = errors.New("selector must set exactly one of name or code")

type selectorJSON struct {
	Name string         `json:"name,omitempty"`
	Code *hexutil.Bytes `json:"code,omitempty"`
}

func (s Selector) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SelectorByCode:
		code := hexutil.Bytes(s.Code[:])
		return json.Marshal(selectorJSON{Code: &code})
	case SelectorByName:
		return json.Marshal(selectorJSON{Name: s.Name})
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidSelector, s.Kind)
	}
}

func (s *Selector) UnmarshalJSON(b []byte) error {
	var raw selectorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch {
	case raw.Code != nil && raw.Name == "":
		if len(*raw.Code) != SelectorCodeLen {
			return fmt.Errorf("%w: code of %d bytes", ErrInvalidSelector, len(*raw.Code))
		}
		*s = Selector{Kind: SelectorByCode}
		copy(s.Code[:], *raw.Code)
	case raw.Code == nil && raw.Name != "":
		*s = ByName(raw.Name)
	default:
		return errAmbiguousSelector
	}
	return s.Verify()
}

// operationJSON is the wire form used by the API and the CLI. Chain ids are
// decimal strings so they survive JavaScript clients.
type operationJSON struct {
	ProtocolID     string         `json:"protocolId"`
	Meta           common.Hash    `json:"meta"`
	SrcChainID     string         `json:"srcChainId"`
	SrcBlockNumber hexutil.Uint64 `json:"srcBlockNumber"`
	SrcOpTxID      common.Hash    `json:"srcOpTxId"`
	Nonce          hexutil.Uint64 `json:"nonce"`
	DestChainID    string         `json:"destChainId"`
	ProtocolAddr   common.Hash    `json:"protocolAddr"`
	Selector       Selector       `json:"selector"`
	Params         hexutil.Bytes  `json:"params"`
	Reserved       hexutil.Bytes  `json:"reserved"`
}

func (op Operation) MarshalJSON() ([]byte, error) {
	if !op.ProtocolID.IsZero() {
		if err := op.ProtocolID.Verify(); err != nil {
			return nil, err
		}
	}
	return json.Marshal(operationJSON{
		ProtocolID:     op.ProtocolID.String(),
		Meta:           op.Meta,
		SrcChainID:     op.SrcChainID.Dec(),
		SrcBlockNumber: hexutil.Uint64(op.SrcBlockNumber),
		SrcOpTxID:      op.SrcOpTxID,
		Nonce:          hexutil.Uint64(op.Nonce),
		DestChainID:    op.DestChainID.Dec(),
		ProtocolAddr:   common.Hash(op.ProtocolAddr),
		Selector:       op.Selector,
		Params:         op.Params,
		Reserved:       op.Reserved,
	})
}

func (op *Operation) UnmarshalJSON(b []byte) error {
	var raw operationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	protocolID, err := NewProtocolID(raw.ProtocolID)
	if err != nil {
		return err
	}
	srcChainID, err := uint256.FromDecimal(raw.SrcChainID)
	if err != nil {
		return fmt.Errorf("srcChainId: %w", err)
	}
	destChainID, err := uint256.FromDecimal(raw.DestChainID)
	if err != nil {
		return fmt.Errorf("destChainId: %w", err)
	}
	*op = Operation{
		ProtocolID:     protocolID,
		Meta:           raw.Meta,
		SrcChainID:     *srcChainID,
		SrcBlockNumber: uint64(raw.SrcBlockNumber),
		SrcOpTxID:      raw.SrcOpTxID,
		Nonce:          uint64(raw.Nonce),
		DestChainID:    *destChainID,
		ProtocolAddr:   ids.ID(raw.ProtocolAddr),
		Selector:       raw.Selector,
		Params:         raw.Params,
		Reserved:       raw.Reserved,
	}
	return nil
}
