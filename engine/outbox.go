// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"errors"
	"slices"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"

	"github.com/luxfi/relay/gov"
	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/utils/math"
)

var _ gov.Outbox = (*outbox)(nil)

// outbox assigns nonces from the relay config and buffers the resulting
// events until the surrounding call commits.
type outbox struct {
	state  state.State
	events *pending
}

func (o *outbox) ProposeToMaster(selector operation.Selector, params []byte) error {
	config, err := o.config()
	if err != nil {
		return err
	}
	_, err = o.propose(
		operation.GovernanceProtocolID,
		config.EOBChainID,
		config.EOBMasterContract.Bytes(),
		selector,
		params,
	)
	return err
}

func (o *outbox) propose(
	protocolID operation.ProtocolID,
	destChainID uint256.Int,
	protocolAddr []byte,
	selector operation.Selector,
	params []byte,
) (*ProposeEvent, error) {
	config, err := o.config()
	if err != nil {
		return nil, err
	}
	nonce := config.Nonce
	config.Nonce, err = math.Add(nonce, 1)
	if err != nil {
		return nil, err
	}
	o.state.PutConfig(config)

	event := &ProposeEvent{
		ProtocolID:      protocolID,
		Nonce:           nonce,
		DestChainID:     destChainID,
		ProtocolAddress: slices.Clone(protocolAddr),
		Selector:        selector,
		Params:          slices.Clone(params),
	}
	o.events.add(func(sink EventSink) {
		sink.Propose(event)
	})
	return event, nil
}

func (o *outbox) config() (*state.Config, error) {
	config, err := o.state.GetConfig()
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return config, err
}
