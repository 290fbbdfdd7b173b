// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/relay/operation"
)

var _ EventSink = (*LogSink)(nil)

// ProposeEvent is an outbound operation addressed to another chain.
type ProposeEvent struct {
	ProtocolID      operation.ProtocolID
	Nonce           uint64
	DestChainID     uint256.Int
	ProtocolAddress []byte
	Selector        operation.Selector
	Params          []byte
}

// EventSink observes the engine. Events are published only after the call
// that produced them committed.
type EventSink interface {
	ProposalCreated(hash common.Hash, executor ids.ID)
	ProposalApproved(hash common.Hash, executor ids.ID)
	ProposalExecuted(hash common.Hash, executor ids.ID)
	Propose(event *ProposeEvent)
}

// LogSink writes every event to a logger.
type LogSink struct {
	Log log.Logger
}

func (s *LogSink) ProposalCreated(hash common.Hash, executor ids.ID) {
	s.Log.Info("proposal created",
		log.Stringer("opHash", hash),
		log.Stringer("executor", executor),
	)
}

func (s *LogSink) ProposalApproved(hash common.Hash, executor ids.ID) {
	s.Log.Info("proposal approved",
		log.Stringer("opHash", hash),
		log.Stringer("executor", executor),
	)
}

func (s *LogSink) ProposalExecuted(hash common.Hash, executor ids.ID) {
	s.Log.Info("proposal executed",
		log.Stringer("opHash", hash),
		log.Stringer("executor", executor),
	)
}

func (s *LogSink) Propose(event *ProposeEvent) {
	s.Log.Info("propose",
		log.Stringer("protocolID", event.ProtocolID),
		log.Uint64("nonce", event.Nonce),
		log.String("destChainID", event.DestChainID.Dec()),
		log.String("protocolAddress", hexutil.Encode(event.ProtocolAddress)),
		log.Stringer("selector", event.Selector),
		log.String("params", hexutil.Encode(event.Params)),
	)
}

// pending buffers events until the producing call commits.
type pending struct {
	events []func(EventSink)
}

func (p *pending) add(f func(EventSink)) {
	p.events = append(p.events, f)
}

func (p *pending) publish(sink EventSink) {
	for _, f := range p.events {
		f(sink)
	}
}
