// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine drives operations through load, sign and execute. Every call
// is applied to the state as a single unit: it either commits in full or
// leaves nothing behind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/relay/dispatch"
	"github.com/luxfi/relay/genesis"
	"github.com/luxfi/relay/gov"
	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/registry"
	"github.com/luxfi/relay/signature"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/utils/math"
)

const DefaultMaxSignaturesPerCall = 16

// targetDataPrefix separates the keys a target writes from the bookkeeping
// the relay keeps in the same account space.
var targetDataPrefix = []byte("data")

// Dispatcher delivers a call to the program at call.Address.
type Dispatcher interface {
	Dispatch(ctx context.Context, call *dispatch.Call) error
}

type Config struct {
	// ChainID of the ledger this engine runs on.
	ChainID              uint256.Int
	MaxSignaturesPerCall int
}

// SignResult describes the entry after a sign call.
type SignResult struct {
	Status           state.Status
	SignatureCount   uint64
	Accepted         int
	Duplicates       int
	ConsensusReached bool
}

type Engine struct {
	config     Config
	log        log.Logger
	dispatcher Dispatcher
	sink       EventSink
	metrics    *metrics

	// lock serializes writers. Readers of committed state take the read lock.
	lock     sync.RWMutex
	state    state.State
	registry *registry.Registry
}

// New returns an engine over db. A nil sink logs events.
func New(
	config Config,
	logger log.Logger,
	db database.Database,
	dispatcher Dispatcher,
	sink EventSink,
	registerer prometheus.Registerer,
) (*Engine, error) {
	if config.MaxSignaturesPerCall <= 0 {
		config.MaxSignaturesPerCall = DefaultMaxSignaturesPerCall
	}
	if sink == nil {
		sink = &LogSink{Log: logger}
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	s := state.New(db)
	return &Engine{
		config:     config,
		log:        logger,
		dispatcher: dispatcher,
		sink:       sink,
		metrics:    m,
		state:      s,
		registry:   registry.New(s),
	}, nil
}

// Initialize writes the relay config and registers the governance protocol.
func (e *Engine) Initialize(g *genesis.Genesis) error {
	if err := g.Verify(); err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	defer e.state.Abort()

	switch _, err := e.state.GetConfig(); {
	case err == nil:
		return ErrAlreadyInitialized
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	if _, err := e.registry.RegisterProtocol(
		operation.GovernanceProtocolID,
		g.ConsensusTargetRate,
		g.Transmitters,
		g.Executors,
	); err != nil {
		return fmt.Errorf("failed to register governance protocol: %w", err)
	}
	if err := e.registry.AllowAddress(operation.GovernanceProtocolID, g.RelayAddress); err != nil {
		return err
	}
	e.state.PutConfig(&state.Config{
		EOBChainID:        g.EOBChainID,
		EOBMasterContract: g.EOBMasterContract,
		RelayAddress:      g.RelayAddress,
	})
	if err := e.state.Commit(); err != nil {
		return err
	}

	e.log.Info("relay initialized",
		log.String("eobChainID", g.EOBChainID.Dec()),
		log.Stringer("eobMasterContract", g.EOBMasterContract),
		log.Int("transmitters", len(g.Transmitters)),
		log.Int("executors", len(g.Executors)),
	)
	return nil
}

// Load records op in the Loaded state after checking that claimed is its
// content hash.
func (e *Engine) Load(executor ids.ID, op *operation.Operation, claimed common.Hash) (*state.OpInfo, error) {
	hash, err := op.ContentHash()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOpData, err)
	}
	if hash != claimed {
		return nil, fmt.Errorf("%w: computed %s, claimed %s", ErrHashMismatch, hash, claimed)
	}
	if !op.DestChainID.Eq(&e.config.ChainID) {
		return nil, fmt.Errorf("%w: %s", ErrOpIsNotForThisChain, op.DestChainID.Dec())
	}
	if err := op.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOpData, err)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	defer e.state.Abort()

	protocol, err := e.registry.Protocol(op.ProtocolID)
	if err != nil {
		return nil, err
	}
	if !protocol.IsExecutor(executor) {
		return nil, fmt.Errorf("%w: %s", ErrExecutorNotAllowed, executor)
	}
	switch _, err := e.state.GetOperation(hash); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, hash)
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	info := &state.OpInfo{
		Hash:      hash,
		Status:    state.StatusLoaded,
		Operation: *op,
	}
	e.state.PutOperation(info)
	if err := e.state.Commit(); err != nil {
		return nil, err
	}

	e.metrics.loaded.Inc()
	e.log.Info("operation loaded",
		log.Stringer("opHash", hash),
		log.Stringer("protocolID", op.ProtocolID),
		log.Stringer("executor", executor),
	)
	e.sink.ProposalCreated(hash, executor)
	return info, nil
}

// Sign records the transmitters that signed the operation at hash. An invalid
// signature or one from a non-transmitter rejects the whole batch. Signers
// already recorded are skipped. The entry moves to Signed once the signers
// that are still transmitters reach the protocol's target rate; a Signed entry
// keeps accepting signers but never changes status here.
func (e *Engine) Sign(executor ids.ID, hash common.Hash, sigs []signature.Signature) (*SignResult, error) {
	if len(sigs) > e.config.MaxSignaturesPerCall {
		return nil, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, len(sigs), e.config.MaxSignaturesPerCall)
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	defer e.state.Abort()

	info, protocol, err := e.getOperation(executor, hash)
	if err != nil {
		return nil, err
	}
	if info.Status == state.StatusExecuted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, hash)
	}
	if len(protocol.Transmitters) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTransmitters, protocol.ID)
	}

	e.metrics.sigsPerCall.Observe(float64(len(sigs)))
	result := &SignResult{}
	signingHash := operation.SigningHashOf(info.Hash)
	for i, sig := range sigs {
		signer, err := signature.Recover(signingHash, sig)
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		if !protocol.IsTransmitter(signer) {
			return nil, fmt.Errorf("%w: signature %d recovers to %s", ErrUnknownTransmitter, i, signer)
		}
		if info.HasSigner(signer) {
			e.log.Debug("skipping duplicate signer",
				log.Stringer("opHash", hash),
				log.Stringer("signer", signer),
			)
			result.Duplicates++
			continue
		}
		info.Signers = append(info.Signers, signer)
		result.Accepted++
	}

	result.ConsensusReached = reachedConsensus(info, protocol)
	approved := result.ConsensusReached && info.Status == state.StatusLoaded
	if approved {
		info.Status = state.StatusSigned
	}
	result.Status = info.Status
	result.SignatureCount = info.SignatureCount()

	e.state.PutOperation(info)
	if err := e.state.Commit(); err != nil {
		return nil, err
	}

	e.metrics.sigsAccepted.Add(float64(result.Accepted))
	e.metrics.sigsDuplicate.Add(float64(result.Duplicates))
	if approved {
		e.metrics.approved.Inc()
		e.log.Info("operation approved",
			log.Stringer("opHash", hash),
			log.Uint64("signatures", result.SignatureCount),
			log.Int("transmitters", len(protocol.Transmitters)),
		)
		e.sink.ProposalApproved(hash, executor)
	}
	return result, nil
}

// Execute delivers a signed operation to its target and marks it Executed.
// Governance operations are applied to the registry instead. If delivery
// fails nothing is written and the operation stays Signed.
func (e *Engine) Execute(ctx context.Context, executor ids.ID, hash common.Hash, accounts []ids.ID) (*state.OpInfo, error) {
	return e.execute(ctx, executor, hash, accounts, nil)
}

// ExecuteGovernance executes a governance operation that must mutate target.
func (e *Engine) ExecuteGovernance(ctx context.Context, executor ids.ID, hash common.Hash, target operation.ProtocolID) (*state.OpInfo, error) {
	return e.execute(ctx, executor, hash, nil, &target)
}

func (e *Engine) execute(
	ctx context.Context,
	executor ids.ID,
	hash common.Hash,
	accounts []ids.ID,
	target *operation.ProtocolID,
) (*state.OpInfo, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	defer e.state.Abort()

	info, protocol, err := e.getOperation(executor, hash)
	if err != nil {
		return nil, err
	}
	switch info.Status {
	case state.StatusExecuted:
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, hash)
	case state.StatusLoaded:
		return nil, fmt.Errorf("%w: %d of %d transmitters", ErrNotEnoughSignatures, info.SignatureCount(), len(protocol.Transmitters))
	}
	if len(protocol.Transmitters) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTransmitters, protocol.ID)
	}
	if !reachedConsensus(info, protocol) {
		return nil, fmt.Errorf("%w: below the current target rate", ErrNotEnoughSignatures)
	}

	op := &info.Operation
	var events pending
	if op.IsGovernance() {
		if err := e.applyGovernance(op, target, &events); err != nil {
			return nil, err
		}
	} else {
		if !protocol.IsAllowedAddress(op.ProtocolAddr) {
			return nil, fmt.Errorf("%w: %s", ErrTargetNotAllowed, op.ProtocolAddr)
		}
		if target != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotGovernance, op.ProtocolID)
		}
		call := &dispatch.Call{
			ProtocolID: op.ProtocolID,
			OpHash:     hash,
			Executor:   executor,
			Address:    op.ProtocolAddr,
			Selector:   op.Selector,
			Params:     op.Params,
			Accounts:   accounts,
			DB:         prefixdb.New(targetDataPrefix, e.state.AccountDB(op.ProtocolID)),
		}
		if err := e.dispatcher.Dispatch(ctx, call); err != nil {
			e.metrics.executionsFailed.Inc()
			e.log.Warn("target execution failed",
				log.Stringer("opHash", hash),
				log.Stringer("target", op.ProtocolAddr),
				log.Err(err),
			)
			return nil, fmt.Errorf("failed to execute %s: %w", hash, err)
		}
	}

	info.Status = state.StatusExecuted
	e.state.PutOperation(info)
	if err := e.state.Commit(); err != nil {
		return nil, err
	}

	e.metrics.executed.Inc()
	e.log.Info("operation executed",
		log.Stringer("opHash", hash),
		log.Stringer("protocolID", op.ProtocolID),
		log.Stringer("executor", executor),
	)
	e.sink.ProposalExecuted(hash, executor)
	e.publish(&events)
	return info, nil
}

// applyGovernance checks op against the relay address fixed at Initialize,
// not the governance protocol's allowed addresses, so no governance command
// can lock governance out.
func (e *Engine) applyGovernance(op *operation.Operation, target *operation.ProtocolID, events *pending) error {
	out := &outbox{state: e.state, events: events}
	config, err := out.config()
	if err != nil {
		return err
	}
	if op.ProtocolAddr != config.RelayAddress {
		return fmt.Errorf("%w: %s is not the relay address", ErrTargetNotAllowed, op.ProtocolAddr)
	}

	cmd, err := gov.Decode(op.Selector, op.Params)
	if err != nil {
		return err
	}
	if target != nil && cmd.Target() != *target {
		return fmt.Errorf("%w: command targets %s, caller named %s", ErrTargetProtocolMismatch, cmd.Target(), *target)
	}
	env := gov.Env{
		Registry: e.registry,
		Outbox:   out,
		ChainID:  &e.config.ChainID,
	}
	if err := gov.Apply(env, cmd); err != nil {
		return fmt.Errorf("failed to apply %s: %w", cmd.Opcode(), err)
	}
	e.log.Info("governance command applied",
		log.Stringer("command", cmd.Opcode()),
		log.Stringer("target", cmd.Target()),
	)
	return nil
}

// Propose emits an outbound operation on behalf of a registered proposer of
// protocolID. Every proposal takes the next value of the global nonce.
func (e *Engine) Propose(
	proposer ids.ID,
	protocolID operation.ProtocolID,
	destChainID uint256.Int,
	protocolAddr []byte,
	selector operation.Selector,
	params []byte,
) (*ProposeEvent, error) {
	if err := selector.Verify(); err != nil {
		return nil, err
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	defer e.state.Abort()

	isProposer, err := e.registry.IsProposer(protocolID, proposer)
	if err != nil {
		return nil, err
	}
	if !isProposer {
		return nil, fmt.Errorf("%w: %s", ErrProposerNotAllowed, proposer)
	}

	var events pending
	ob := &outbox{state: e.state, events: &events}
	event, err := ob.propose(protocolID, destChainID, protocolAddr, selector, params)
	if err != nil {
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		return nil, err
	}
	e.publish(&events)
	return event, nil
}

func (e *Engine) publish(events *pending) {
	e.metrics.proposals.Add(float64(len(events.events)))
	events.publish(e.sink)
}

// getOperation returns the entry at hash with its protocol, after checking
// that executor may act for that protocol.
func (e *Engine) getOperation(executor ids.ID, hash common.Hash) (*state.OpInfo, *state.ProtocolInfo, error) {
	info, err := e.state.GetOperation(hash)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrOperationNotFound, hash)
	}
	if err != nil {
		return nil, nil, err
	}
	protocol, err := e.registry.Protocol(info.Operation.ProtocolID)
	if err != nil {
		return nil, nil, err
	}
	if !protocol.IsExecutor(executor) {
		return nil, nil, fmt.Errorf("%w: %s", ErrExecutorNotAllowed, executor)
	}
	return info, protocol, nil
}

// reachedConsensus counts only the recorded signers that are still
// transmitters of the protocol.
func reachedConsensus(info *state.OpInfo, protocol *state.ProtocolInfo) bool {
	var live uint64
	for _, signer := range info.Signers {
		if protocol.IsTransmitter(signer) {
			live++
		}
	}
	return math.RatioAtLeast(
		live,
		uint64(len(protocol.Transmitters)),
		protocol.ConsensusTargetRate,
		registry.RateDecimals,
	)
}

// ProtocolInfo returns the committed entry for id.
func (e *Engine) ProtocolInfo(id operation.ProtocolID) (*state.ProtocolInfo, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return e.registry.Protocol(id)
}

// OperationInfo returns the committed entry for hash.
func (e *Engine) OperationInfo(hash common.Hash) (*state.OpInfo, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	info, err := e.state.GetOperation(hash)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, hash)
	}
	return info, err
}

func (e *Engine) Proposers(id operation.ProtocolID) ([]ids.ID, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	return e.registry.Proposers(id)
}

func (e *Engine) RelayConfig() (*state.Config, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	config, err := e.state.GetConfig()
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return config, err
}
