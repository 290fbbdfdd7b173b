// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	dto "github.com/prometheus/client_model/go"

	"github.com/luxfi/relay/dispatch"
	"github.com/luxfi/relay/dispatch/dispatchmock"
	"github.com/luxfi/relay/genesis"
	"github.com/luxfi/relay/gov"
	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/registry"
	"github.com/luxfi/relay/signature"
	"github.com/luxfi/relay/state"
)

var (
	testChainID  = *uint256.NewInt(96369)
	bridgeID     = operation.MustProtocolID("bridge")
	errTestFatal = errors.New("target failed")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	lock      sync.Mutex
	created   []common.Hash
	approved  []common.Hash
	executed  []common.Hash
	proposals []*ProposeEvent
}

func (r *recorder) ProposalCreated(hash common.Hash, _ ids.ID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.created = append(r.created, hash)
}

func (r *recorder) ProposalApproved(hash common.Hash, _ ids.ID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.approved = append(r.approved, hash)
}

func (r *recorder) ProposalExecuted(hash common.Hash, _ ids.ID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.executed = append(r.executed, hash)
}

func (r *recorder) Propose(event *ProposeEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.proposals = append(r.proposals, event)
}

type testEnv struct {
	engine   *Engine
	sink     *recorder
	router   *dispatch.Router
	registry *prometheus.Registry

	govKeys      []*ecdsa.PrivateKey
	govExecutor  ids.ID
	relayAddress ids.ID
	master       common.Address

	nonce uint64
}

// bridge is a registered protocol with its own transmitters, one executor
// and one allowed target.
type bridge struct {
	keys     []*ecdsa.PrivateKey
	executor ids.ID
	target   ids.ID
}

func newKeys(t *testing.T, n int) ([]*ecdsa.PrivateKey, []common.Address) {
	keys := make([]*ecdsa.PrivateKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		addrs[i] = crypto.PubkeyToAddress(key.PublicKey)
	}
	return keys, addrs
}

func newTestEnv(t *testing.T) *testEnv {
	require := require.New(t)

	keys, addrs := newKeys(t, 3)
	env := &testEnv{
		sink:         &recorder{},
		router:       dispatch.NewRouter(),
		registry:     prometheus.NewRegistry(),
		govKeys:      keys,
		govExecutor:  ids.GenerateTestID(),
		relayAddress: ids.GenerateTestID(),
		master:       common.Address{0xaa},
	}
	e, err := New(
		Config{ChainID: testChainID},
		log.NewNoOpLogger(),
		memdb.New(),
		env.router,
		env.sink,
		env.registry,
	)
	require.NoError(err)
	require.NoError(e.Initialize(&genesis.Genesis{
		EOBChainID:          *uint256.NewInt(1),
		EOBMasterContract:   env.master,
		ConsensusTargetRate: 6000,
		Transmitters:        addrs,
		Executors:           []ids.ID{env.govExecutor},
		RelayAddress:        env.relayAddress,
	}))
	env.engine = e
	return env
}

func (env *testEnv) newOperation(
	protocolID operation.ProtocolID,
	addr ids.ID,
	selector operation.Selector,
	params []byte,
) *operation.Operation {
	env.nonce++
	return &operation.Operation{
		ProtocolID:     protocolID,
		SrcChainID:     *uint256.NewInt(1),
		SrcBlockNumber: 100,
		SrcOpTxID:      common.Hash{byte(env.nonce)},
		Nonce:          env.nonce,
		DestChainID:    testChainID,
		ProtocolAddr:   addr,
		Selector:       selector,
		Params:         params,
	}
}

func (env *testEnv) load(t *testing.T, executor ids.ID, op *operation.Operation) common.Hash {
	hash, err := op.ContentHash()
	require.NoError(t, err)
	_, err = env.engine.Load(executor, op, hash)
	require.NoError(t, err)
	return hash
}

func sign(t *testing.T, hash common.Hash, keys ...*ecdsa.PrivateKey) []signature.Signature {
	sigs := make([]signature.Signature, len(keys))
	for i, key := range keys {
		sig, err := signature.Sign(operation.SigningHashOf(hash), key)
		require.NoError(t, err)
		sigs[i] = sig
	}
	return sigs
}

// approveGovernance loads cmd as a governance operation and signs it with
// every governance transmitter.
func (env *testEnv) approveGovernance(t *testing.T, cmd gov.Command) common.Hash {
	require := require.New(t)

	selector, params, err := gov.Encode(cmd)
	require.NoError(err)
	op := env.newOperation(operation.GovernanceProtocolID, env.relayAddress, selector, params)
	hash := env.load(t, env.govExecutor, op)
	result, err := env.engine.Sign(env.govExecutor, hash, sign(t, hash, env.govKeys...))
	require.NoError(err)
	require.True(result.ConsensusReached)
	return hash
}

// govern runs cmd through load, sign and execute and returns the execute
// error.
func (env *testEnv) govern(t *testing.T, cmd gov.Command) (common.Hash, error) {
	hash := env.approveGovernance(t, cmd)
	_, err := env.engine.Execute(context.Background(), env.govExecutor, hash, nil)
	return hash, err
}

func (env *testEnv) mustGovern(t *testing.T, cmds ...gov.Command) {
	for _, cmd := range cmds {
		_, err := env.govern(t, cmd)
		require.NoError(t, err)
	}
}

func (env *testEnv) newBridge(t *testing.T, transmitters int, rate uint64) *bridge {
	keys, addrs := newKeys(t, transmitters)
	b := &bridge{
		keys:     keys,
		executor: ids.GenerateTestID(),
		target:   ids.GenerateTestID(),
	}
	env.mustGovern(t,
		&gov.AddAllowedProtocol{ProtocolID: bridgeID, ConsensusTargetRate: rate, Transmitters: addrs},
		&gov.AddExecutor{ProtocolID: bridgeID, Executor: b.executor},
		&gov.AddAllowedProtocolAddress{ProtocolID: bridgeID, Address: b.target},
	)
	return b
}

func (env *testEnv) loadBridgeOp(t *testing.T, b *bridge) (*operation.Operation, common.Hash) {
	op := env.newOperation(bridgeID, b.target, operation.ByName("mint"), []byte{0xde, 0xad})
	return op, env.load(t, b.executor, op)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	families, err := g.Gather()
	require.NoError(t, err)
	family := findFamily(families, name)
	if family == nil {
		return 0
	}
	var sum float64
	for _, m := range family.GetMetric() {
		sum += m.GetCounter().GetValue()
	}
	return sum
}

func TestInitialize(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	err := env.engine.Initialize(&genesis.Genesis{
		EOBChainID:        *uint256.NewInt(1),
		EOBMasterContract: env.master,
		Executors:         []ids.ID{env.govExecutor},
		RelayAddress:      env.relayAddress,
	})
	require.ErrorIs(err, ErrAlreadyInitialized)

	info, err := env.engine.ProtocolInfo(operation.GovernanceProtocolID)
	require.NoError(err)
	require.Len(info.Transmitters, 3)
	require.Equal([]ids.ID{env.govExecutor}, info.Executors)
	require.Equal([]ids.ID{env.relayAddress}, info.AllowedAddresses)
	require.Equal(uint64(6000), info.ConsensusTargetRate)

	config, err := env.engine.RelayConfig()
	require.NoError(err)
	require.Equal(env.master, config.EOBMasterContract)
	require.Equal(env.relayAddress, config.RelayAddress)
	require.Zero(config.Nonce)
}

func TestRelayConfigNotInitialized(t *testing.T) {
	e, err := New(Config{}, log.NewNoOpLogger(), memdb.New(), dispatch.NewRouter(), nil, prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = e.RelayConfig()
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		mutate          func(*operation.Operation)
		wrongHash       bool
		foreignExecutor bool
		expectedErr     error
	}{
		"valid": {},
		"hash mismatch": {
			wrongHash:   true,
			expectedErr: ErrHashMismatch,
		},
		"wrong destination chain": {
			mutate: func(op *operation.Operation) {
				op.DestChainID = *uint256.NewInt(1)
			},
			expectedErr: ErrOpIsNotForThisChain,
		},
		"empty protocol id": {
			mutate: func(op *operation.Operation) {
				op.ProtocolID = operation.ProtocolID{}
			},
			expectedErr: ErrInvalidOpData,
		},
		"selector too big": {
			mutate: func(op *operation.Operation) {
				op.Selector = operation.ByName(strings.Repeat("a", operation.MaxSelectorNameLen+1))
			},
			expectedErr: operation.ErrSelectorTooBig,
		},
		"unknown protocol": {
			mutate: func(op *operation.Operation) {
				op.ProtocolID = operation.MustProtocolID("unknown")
			},
			expectedErr: registry.ErrProtocolNotFound,
		},
		"executor not allowed": {
			foreignExecutor: true,
			expectedErr:     ErrExecutorNotAllowed,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			b := env.newBridge(t, 3, 6000)
			op := env.newOperation(bridgeID, b.target, operation.ByName("mint"), nil)
			if test.mutate != nil {
				test.mutate(op)
			}

			hash, err := op.ContentHash()
			if err != nil {
				require.ErrorIs(err, test.expectedErr)
			}
			if test.wrongHash {
				hash = common.Hash{1}
			}
			executor := b.executor
			if test.foreignExecutor {
				executor = ids.GenerateTestID()
			}

			info, err := env.engine.Load(executor, op, hash)
			require.ErrorIs(err, test.expectedErr)
			if test.expectedErr != nil {
				return
			}
			require.Equal(state.StatusLoaded, info.Status)
			require.Empty(info.Signers)
			require.Contains(env.sink.created, hash)
		})
	}
}

func TestLoadTwice(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	op, hash := env.loadBridgeOp(t, b)

	_, err := env.engine.Load(b.executor, op, hash)
	require.ErrorIs(err, ErrAlreadyLoaded)

	info, err := env.engine.OperationInfo(hash)
	require.NoError(err)
	require.Equal(state.StatusLoaded, info.Status)
	require.Equal(*op, info.Operation)
}

// Three transmitters at 60%: one signature is 10000 < 18000, two are
// 20000 >= 18000.
func TestConsensusThreshold(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	op, hash := env.loadBridgeOp(t, b)

	result, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[0]))
	require.NoError(err)
	require.Equal(&SignResult{
		Status:         state.StatusLoaded,
		SignatureCount: 1,
		Accepted:       1,
	}, result)

	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.ErrorIs(err, ErrNotEnoughSignatures)

	result, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[1]))
	require.NoError(err)
	require.Equal(&SignResult{
		Status:           state.StatusSigned,
		SignatureCount:   2,
		Accepted:         1,
		ConsensusReached: true,
	}, result)
	require.Contains(env.sink.approved, hash)

	accounts := []ids.ID{ids.GenerateTestID()}
	target := dispatchmock.NewTarget(ctrl)
	target.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, call *dispatch.Call) error {
			require.Equal(bridgeID, call.ProtocolID)
			require.Equal(hash, call.OpHash)
			require.Equal(b.executor, call.Executor)
			require.Equal(b.target, call.Address)
			require.Equal(op.Selector, call.Selector)
			require.Equal(op.Params, call.Params)
			require.Equal(accounts, call.Accounts)
			return nil
		},
	).Times(1)
	require.NoError(env.router.Register(b.target, target))

	info, err := env.engine.Execute(context.Background(), b.executor, hash, accounts)
	require.NoError(err)
	require.Equal(state.StatusExecuted, info.Status)
	require.Contains(env.sink.executed, hash)

	_, err = env.engine.Execute(context.Background(), b.executor, hash, accounts)
	require.ErrorIs(err, ErrAlreadyExecuted)

	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[2]))
	require.ErrorIs(err, ErrAlreadyExecuted)

	info, err = env.engine.OperationInfo(hash)
	require.NoError(err)
	require.Equal(state.StatusExecuted, info.Status)
	require.Equal(uint64(2), info.SignatureCount())
}

func TestSignDuplicates(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 10000)
	_, hash := env.loadBridgeOp(t, b)

	sig := sign(t, hash, b.keys[0])[0]
	result, err := env.engine.Sign(b.executor, hash, []signature.Signature{sig, sig})
	require.NoError(err)
	require.Equal(1, result.Accepted)
	require.Equal(1, result.Duplicates)
	require.Equal(uint64(1), result.SignatureCount)

	result, err = env.engine.Sign(b.executor, hash, []signature.Signature{sig})
	require.NoError(err)
	require.Zero(result.Accepted)
	require.Equal(1, result.Duplicates)
	require.Equal(uint64(1), result.SignatureCount)
	require.Equal(state.StatusLoaded, result.Status)

	// the malleated twin recovers the same signer
	twin := signature.Signature{
		V: 55 - sig.V,
		R: sig.R,
		S: common.BigToHash(new(big.Int).Sub(crypto.S256().Params().N, new(big.Int).SetBytes(sig.S[:]))),
	}
	result, err = env.engine.Sign(b.executor, hash, []signature.Signature{twin})
	require.NoError(err)
	require.Equal(1, result.Duplicates)
	require.Equal(uint64(1), result.SignatureCount)
}

func TestSignRejectsBatch(t *testing.T) {
	strangers, _ := newKeys(t, 1)
	tests := map[string]struct {
		sigs        func(common.Hash, *bridge) []signature.Signature
		expectedErr error
	}{
		"unknown transmitter": {
			sigs: func(hash common.Hash, b *bridge) []signature.Signature {
				return sign(t, hash, b.keys[0], strangers[0])
			},
			expectedErr: ErrUnknownTransmitter,
		},
		"invalid signature": {
			sigs: func(hash common.Hash, b *bridge) []signature.Signature {
				sigs := sign(t, hash, b.keys[0], b.keys[1])
				sigs[1].V = 5
				return sigs
			},
			expectedErr: signature.ErrInvalidSignature,
		},
		"signature over another hash": {
			sigs: func(_ common.Hash, b *bridge) []signature.Signature {
				return sign(t, common.Hash{1}, b.keys[0])
			},
			expectedErr: ErrUnknownTransmitter,
		},
		"chunk too large": {
			sigs: func(common.Hash, *bridge) []signature.Signature {
				return make([]signature.Signature, DefaultMaxSignaturesPerCall+1)
			},
			expectedErr: ErrChunkTooLarge,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t)
			b := env.newBridge(t, 3, 6000)
			_, hash := env.loadBridgeOp(t, b)

			_, err := env.engine.Sign(b.executor, hash, test.sigs(hash, b))
			require.ErrorIs(err, test.expectedErr)

			info, err := env.engine.OperationInfo(hash)
			require.NoError(err)
			require.Equal(state.StatusLoaded, info.Status)
			require.Zero(info.SignatureCount())
		})
	}
}

func TestSignErrors(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	_, hash := env.loadBridgeOp(t, b)

	_, err := env.engine.Sign(b.executor, common.Hash{1}, nil)
	require.ErrorIs(err, ErrOperationNotFound)

	_, err = env.engine.Sign(env.govExecutor, hash, sign(t, hash, b.keys[0]))
	require.ErrorIs(err, ErrExecutorNotAllowed)

	_, addrs := newKeys(t, 0)
	env.mustGovern(t, &gov.UpdateTransmitters{
		ProtocolID: bridgeID,
		ToAdd:      addrs,
		ToRemove: []common.Address{
			crypto.PubkeyToAddress(b.keys[0].PublicKey),
			crypto.PubkeyToAddress(b.keys[1].PublicKey),
			crypto.PubkeyToAddress(b.keys[2].PublicKey),
		},
	})
	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[0]))
	require.ErrorIs(err, ErrNoTransmitters)
}

func TestSignAfterConsensus(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	_, hash := env.loadBridgeOp(t, b)

	_, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[0], b.keys[1]))
	require.NoError(err)

	result, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[2]))
	require.NoError(err)
	require.Equal(&SignResult{
		Status:           state.StatusSigned,
		SignatureCount:   3,
		Accepted:         1,
		ConsensusReached: true,
	}, result)

	env.sink.lock.Lock()
	defer env.sink.lock.Unlock()
	var approvals int
	for _, approved := range env.sink.approved {
		if approved == hash {
			approvals++
		}
	}
	require.Equal(1, approvals)
}

func TestExecuteRollsBackFailedTarget(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	_, hash := env.loadBridgeOp(t, b)
	_, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys...))
	require.NoError(err)

	key := []byte("balance")
	target := dispatchmock.NewTarget(ctrl)
	gomock.InOrder(
		target.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, call *dispatch.Call) error {
				require.NoError(call.DB.Put(key, []byte{1}))
				return errTestFatal
			},
		),
		target.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, call *dispatch.Call) error {
				has, err := call.DB.Has(key)
				require.NoError(err)
				require.False(has)
				return call.DB.Put(key, []byte{2})
			},
		),
	)
	require.NoError(env.router.Register(b.target, target))

	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.ErrorIs(err, errTestFatal)

	info, err := env.engine.OperationInfo(hash)
	require.NoError(err)
	require.Equal(state.StatusSigned, info.Status)
	require.Equal(float64(1), counterValue(t, env.registry, "executions_failed"))

	info, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.NoError(err)
	require.Equal(state.StatusExecuted, info.Status)

	db := prefixdb.New(targetDataPrefix, env.engine.state.AccountDB(bridgeID))
	value, err := db.Get(key)
	require.NoError(err)
	require.Equal([]byte{2}, value)
}

func TestExecuteTargetErrors(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)

	// allowed but nothing is routed there
	_, hash := env.loadBridgeOp(t, b)
	_, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys...))
	require.NoError(err)
	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.ErrorIs(err, dispatch.ErrTargetNotFound)

	op := env.newOperation(bridgeID, ids.GenerateTestID(), operation.ByName("mint"), nil)
	hash = env.load(t, b.executor, op)
	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys...))
	require.NoError(err)
	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.ErrorIs(err, ErrTargetNotAllowed)

	_, err = env.engine.Execute(context.Background(), env.govExecutor, hash, nil)
	require.ErrorIs(err, ErrExecutorNotAllowed)

	_, err = env.engine.Execute(context.Background(), b.executor, common.Hash{1}, nil)
	require.ErrorIs(err, ErrOperationNotFound)
}

// Consensus is evaluated against the transmitters registered when the
// entry is signed or executed, not when it was loaded.
func TestLiveTransmitterSet(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	_, hash := env.loadBridgeOp(t, b)

	result, err := env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[0], b.keys[1]))
	require.NoError(err)
	require.Equal(state.StatusSigned, result.Status)

	// 1 live signer of 2 transmitters: 10000 < 12000
	env.mustGovern(t, &gov.RemoveTransmitters{
		ProtocolID:   bridgeID,
		Transmitters: []common.Address{crypto.PubkeyToAddress(b.keys[0].PublicKey)},
	})
	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.ErrorIs(err, ErrNotEnoughSignatures)

	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[0]))
	require.ErrorIs(err, ErrUnknownTransmitter)

	result, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[2]))
	require.NoError(err)
	require.True(result.ConsensusReached)
	require.Equal(uint64(3), result.SignatureCount)

	target := dispatchmock.NewTarget(ctrl)
	target.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
	require.NoError(env.router.Register(b.target, target))

	_, err = env.engine.Execute(context.Background(), b.executor, hash, nil)
	require.NoError(err)
}

func TestGovernanceAddTransmittersTwice(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.newBridge(t, 3, 6000)

	_, addrs := newKeys(t, 1)
	cmd := &gov.AddTransmitters{ProtocolID: bridgeID, Transmitters: addrs}
	env.mustGovern(t, cmd)

	hash, err := env.govern(t, cmd)
	require.ErrorIs(err, registry.ErrAlreadyAllowed)

	info, err := env.engine.OperationInfo(hash)
	require.NoError(err)
	require.Equal(state.StatusSigned, info.Status)

	protocol, err := env.engine.ProtocolInfo(bridgeID)
	require.NoError(err)
	require.Len(protocol.Transmitters, 4)
}

func TestGovernanceKeepsLastExecutor(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	_, err := env.govern(t, &gov.RemoveExecutor{
		ProtocolID: operation.GovernanceProtocolID,
		Executor:   env.govExecutor,
	})
	require.ErrorIs(err, registry.ErrTryingToRemoveLastGovExecutor)

	info, err := env.engine.ProtocolInfo(operation.GovernanceProtocolID)
	require.NoError(err)
	require.Equal([]ids.ID{env.govExecutor}, info.Executors)
}

func TestGovernanceMutatesItself(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.mustGovern(t, &gov.SetConsensusTargetRate{
		ProtocolID: operation.GovernanceProtocolID,
		Rate:       10000,
	})

	info, err := env.engine.ProtocolInfo(operation.GovernanceProtocolID)
	require.NoError(err)
	require.Equal(uint64(10000), info.ConsensusTargetRate)

	// two of three no longer reach consensus
	selector, params, err := gov.Encode(&gov.SetConsensusTargetRate{
		ProtocolID: operation.GovernanceProtocolID,
		Rate:       5000,
	})
	require.NoError(err)
	op := env.newOperation(operation.GovernanceProtocolID, env.relayAddress, selector, params)
	hash := env.load(t, env.govExecutor, op)
	result, err := env.engine.Sign(env.govExecutor, hash, sign(t, hash, env.govKeys[:2]...))
	require.NoError(err)
	require.False(result.ConsensusReached)
}

func TestExecuteGovernance(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	executor := ids.GenerateTestID()
	hash := env.approveGovernance(t, &gov.AddExecutor{ProtocolID: bridgeID, Executor: executor})

	_, err := env.engine.ExecuteGovernance(context.Background(), env.govExecutor, hash, operation.GovernanceProtocolID)
	require.ErrorIs(err, ErrTargetProtocolMismatch)

	info, err := env.engine.ExecuteGovernance(context.Background(), env.govExecutor, hash, bridgeID)
	require.NoError(err)
	require.Equal(state.StatusExecuted, info.Status)

	protocol, err := env.engine.ProtocolInfo(bridgeID)
	require.NoError(err)
	require.Equal([]ids.ID{b.executor, executor}, protocol.Executors)

	_, hash = env.loadBridgeOp(t, b)
	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys...))
	require.NoError(err)
	_, err = env.engine.ExecuteGovernance(context.Background(), b.executor, hash, bridgeID)
	require.ErrorIs(err, ErrNotGovernance)
}

func TestGovernanceRequiresRelayAddress(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	selector, params, err := gov.Encode(&gov.AddExecutor{
		ProtocolID: operation.GovernanceProtocolID,
		Executor:   ids.GenerateTestID(),
	})
	require.NoError(err)
	op := env.newOperation(operation.GovernanceProtocolID, ids.GenerateTestID(), selector, params)
	hash := env.load(t, env.govExecutor, op)
	_, err = env.engine.Sign(env.govExecutor, hash, sign(t, hash, env.govKeys...))
	require.NoError(err)

	_, err = env.engine.Execute(context.Background(), env.govExecutor, hash, nil)
	require.ErrorIs(err, ErrTargetNotAllowed)
}

func TestGovernanceSurvivesDeniedRelayAddress(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.mustGovern(t, &gov.RemoveAllowedProtocolAddress{
		ProtocolID: operation.GovernanceProtocolID,
		Address:    env.relayAddress,
	})
	info, err := env.engine.ProtocolInfo(operation.GovernanceProtocolID)
	require.NoError(err)
	require.Empty(info.AllowedAddresses)

	executor := ids.GenerateTestID()
	env.mustGovern(t,
		&gov.AddExecutor{ProtocolID: operation.GovernanceProtocolID, Executor: executor},
		&gov.AddAllowedProtocolAddress{ProtocolID: operation.GovernanceProtocolID, Address: env.relayAddress},
	)
	info, err = env.engine.ProtocolInfo(operation.GovernanceProtocolID)
	require.NoError(err)
	require.Equal([]ids.ID{env.govExecutor, executor}, info.Executors)
	require.Equal([]ids.ID{env.relayAddress}, info.AllowedAddresses)
}

func TestPropose(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	env.newBridge(t, 3, 6000)

	require.Len(env.sink.proposals, 1)
	added := env.sink.proposals[0]
	require.Equal(operation.GovernanceProtocolID, added.ProtocolID)
	require.Zero(added.Nonce)
	require.Equal(*uint256.NewInt(1), added.DestChainID)
	require.Equal(env.master.Bytes(), added.ProtocolAddress)
	require.Equal(gov.HandleAddAllowedProtocolOp.Selector(), added.Selector)

	proposer := ids.GenerateTestID()
	_, err := env.engine.Propose(proposer, bridgeID, *uint256.NewInt(1), []byte{1}, operation.ByName("unlock"), nil)
	require.ErrorIs(err, ErrProposerNotAllowed)

	env.mustGovern(t, &gov.AddAllowedProposerAddress{ProtocolID: bridgeID, Proposer: proposer})
	proposers, err := env.engine.Proposers(bridgeID)
	require.NoError(err)
	require.Equal([]ids.ID{proposer}, proposers)

	_, err = env.engine.Propose(proposer, bridgeID, *uint256.NewInt(1), []byte{1}, operation.Selector{}, nil)
	require.ErrorIs(err, operation.ErrInvalidSelector)

	event, err := env.engine.Propose(proposer, bridgeID, *uint256.NewInt(56), []byte{1, 2}, operation.ByName("unlock"), []byte{3})
	require.NoError(err)
	require.Equal(&ProposeEvent{
		ProtocolID:      bridgeID,
		Nonce:           1,
		DestChainID:     *uint256.NewInt(56),
		ProtocolAddress: []byte{1, 2},
		Selector:        operation.ByName("unlock"),
		Params:          []byte{3},
	}, event)
	require.Equal(event, env.sink.proposals[1])

	config, err := env.engine.RelayConfig()
	require.NoError(err)
	require.Equal(uint64(2), config.Nonce)
	require.Equal(float64(2), counterValue(t, env.registry, "proposals"))
}

func TestConcurrentSign(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, registry.MaxTransmitters, 10000)
	_, hash := env.loadBridgeOp(t, b)

	var eg errgroup.Group
	for _, key := range b.keys {
		sigs := sign(t, hash, key)
		eg.Go(func() error {
			_, err := env.engine.Sign(b.executor, hash, sigs)
			return err
		})
	}
	require.NoError(eg.Wait())

	info, err := env.engine.OperationInfo(hash)
	require.NoError(err)
	require.Equal(uint64(registry.MaxTransmitters), info.SignatureCount())
	require.Equal(state.StatusSigned, info.Status)
}

func TestMetrics(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t)
	b := env.newBridge(t, 3, 6000)
	loaded := counterValue(t, env.registry, "operations_loaded")
	approved := counterValue(t, env.registry, "operations_approved")

	_, hash := env.loadBridgeOp(t, b)
	sig := sign(t, hash, b.keys[0])[0]
	_, err := env.engine.Sign(b.executor, hash, []signature.Signature{sig, sig})
	require.NoError(err)
	_, err = env.engine.Sign(b.executor, hash, sign(t, hash, b.keys[1]))
	require.NoError(err)

	require.Equal(loaded+1, counterValue(t, env.registry, "operations_loaded"))
	require.Equal(approved+1, counterValue(t, env.registry, "operations_approved"))

	families, err := env.registry.Gather()
	require.NoError(err)
	family := findFamily(families, "signatures_per_call")
	require.NotNil(family)
	require.Equal(dto.MetricType_HISTOGRAM, family.GetType())
}
