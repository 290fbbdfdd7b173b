// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gov

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/registry"
	"github.com/luxfi/relay/state"
)

var testProtocolID = operation.MustProtocolID("bridge")

type proposal struct {
	selector operation.Selector
	params   []byte
}

type recordingOutbox struct {
	proposals []proposal
}

func (o *recordingOutbox) ProposeToMaster(selector operation.Selector, params []byte) error {
	o.proposals = append(o.proposals, proposal{selector: selector, params: params})
	return nil
}

func newTestEnv(t *testing.T) (Env, *recordingOutbox) {
	r := registry.New(state.New(memdb.New()))
	_, err := r.RegisterProtocol(operation.GovernanceProtocolID, 5000, []common.Address{{1}}, []ids.ID{{1}})
	require.NoError(t, err)
	out := &recordingOutbox{}
	return Env{
		Registry: r,
		Outbox:   out,
		ChainID:  uint256.NewInt(96369),
	}, out
}

func TestEncodeDecode(t *testing.T) {
	commands := map[string]Command{
		"add allowed protocol": &AddAllowedProtocol{
			ProtocolID:          testProtocolID,
			ConsensusTargetRate: 6000,
			Transmitters:        []common.Address{{1}, {2}},
		},
		"add allowed protocol address":    &AddAllowedProtocolAddress{ProtocolID: testProtocolID, Address: ids.ID{3}},
		"remove allowed protocol address": &RemoveAllowedProtocolAddress{ProtocolID: testProtocolID, Address: ids.ID{3}},
		"add proposer":                    &AddAllowedProposerAddress{ProtocolID: testProtocolID, Proposer: ids.ID{4}},
		"remove proposer":                 &RemoveAllowedProposerAddress{ProtocolID: testProtocolID, Proposer: ids.ID{4}},
		"add executor":                    &AddExecutor{ProtocolID: testProtocolID, Executor: ids.ID{5}},
		"remove executor":                 &RemoveExecutor{ProtocolID: testProtocolID, Executor: ids.ID{5}},
		"add transmitters":                &AddTransmitters{ProtocolID: testProtocolID, Transmitters: []common.Address{{6}}},
		"remove transmitters":             &RemoveTransmitters{ProtocolID: testProtocolID, Transmitters: []common.Address{{6}}},
		"update transmitters": &UpdateTransmitters{
			ProtocolID: testProtocolID,
			ToAdd:      []common.Address{{7}},
			ToRemove:   []common.Address{{8}, {9}},
		},
		"set consensus target rate": &SetConsensusTargetRate{ProtocolID: testProtocolID, Rate: 10000},
	}
	for name, cmd := range commands {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			selector, params, err := Encode(cmd)
			require.NoError(err)
			require.Equal(operation.SelectorByCode, selector.Kind)
			require.Equal(uint32(cmd.Opcode()), selector.Uint32())

			decoded, err := Decode(selector, params)
			require.NoError(err)
			require.Equal(cmd, decoded)

			target, err := TargetProtocol(selector, params)
			require.NoError(err)
			require.Equal(testProtocolID, target)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	validParams, err := rateArgs.Pack(rateParams{ProtocolID: testProtocolID, Rate: big.NewInt(1)})
	require.NoError(t, err)
	hugeRate, err := rateArgs.Pack(rateParams{ProtocolID: testProtocolID, Rate: new(big.Int).Lsh(big.NewInt(1), 64)})
	require.NoError(t, err)
	shortAddress, err := addressArgs.Pack(addressParams{ProtocolID: testProtocolID, Address: []byte{1, 2}})
	require.NoError(t, err)

	tests := map[string]struct {
		selector    operation.Selector
		params      []byte
		expectedErr error
	}{
		"by name": {
			selector:    operation.ByName("setConsensusTargetRate"),
			params:      validParams,
			expectedErr: ErrInvalidMethodSelector,
		},
		"unknown code": {
			selector:    operation.ByCodeUint32(0xdeadbeef),
			params:      validParams,
			expectedErr: ErrInvalidMethodSelector,
		},
		"truncated params": {
			selector:    SetConsensusTargetRateOp.Selector(),
			params:      validParams[:40],
			expectedErr: ErrInvalidGovMsg,
		},
		"rate overflow": {
			selector:    SetConsensusTargetRateOp.Selector(),
			params:      hugeRate,
			expectedErr: ErrInvalidGovMsg,
		},
		"short address": {
			selector:    AddExecutorOp.Selector(),
			params:      shortAddress,
			expectedErr: ErrInvalidGovMsg,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(test.selector, test.params)
			require.ErrorIs(t, err, test.expectedErr)
		})
	}
}

func TestApplyAddAllowedProtocol(t *testing.T) {
	require := require.New(t)

	env, out := newTestEnv(t)
	cmd := &AddAllowedProtocol{
		ProtocolID:          testProtocolID,
		ConsensusTargetRate: 6000,
		Transmitters:        []common.Address{{1}, {2}, {3}},
	}
	require.NoError(Apply(env, cmd))

	info, err := env.Registry.Protocol(testProtocolID)
	require.NoError(err)
	require.Equal(uint64(6000), info.ConsensusTargetRate)
	require.Equal(cmd.Transmitters, info.Transmitters)
	require.Empty(info.Executors)

	require.Len(out.proposals, 1)
	require.Equal(HandleAddAllowedProtocolOp.Selector(), out.proposals[0].selector)
	announced, err := unpack[protocolAddedParams](protocolAddedArgs, out.proposals[0].params)
	require.NoError(err)
	require.Equal([32]byte(testProtocolID), announced.ProtocolID)
	require.Equal(uint64(96369), announced.ChainID.Uint64())

	require.ErrorIs(Apply(env, cmd), registry.ErrAlreadyRegistered)
	require.Len(out.proposals, 1)
}

func TestApplyAddTransmittersTwice(t *testing.T) {
	require := require.New(t)

	env, _ := newTestEnv(t)
	require.NoError(Apply(env, &AddAllowedProtocol{ProtocolID: testProtocolID, ConsensusTargetRate: 5000}))

	cmd := &AddTransmitters{ProtocolID: testProtocolID, Transmitters: []common.Address{{4}}}
	require.NoError(Apply(env, cmd))
	require.ErrorIs(Apply(env, cmd), registry.ErrAlreadyAllowed)
}

func TestApplyMutatesGovernanceItself(t *testing.T) {
	require := require.New(t)

	env, _ := newTestEnv(t)
	gid := operation.GovernanceProtocolID

	require.NoError(Apply(env, &SetConsensusTargetRate{ProtocolID: gid, Rate: 10000}))
	require.NoError(Apply(env, &UpdateTransmitters{
		ProtocolID: gid,
		ToAdd:      []common.Address{{2}},
		ToRemove:   []common.Address{{1}},
	}))
	require.ErrorIs(Apply(env, &RemoveExecutor{ProtocolID: gid, Executor: ids.ID{1}}), registry.ErrTryingToRemoveLastGovExecutor)
	require.ErrorIs(Apply(env, &SetConsensusTargetRate{ProtocolID: gid, Rate: 10001}), registry.ErrInvalidConsensusRate)

	info, err := env.Registry.Protocol(gid)
	require.NoError(err)
	require.Equal(uint64(10000), info.ConsensusTargetRate)
	require.Equal([]common.Address{{2}}, info.Transmitters)
	require.Equal([]ids.ID{{1}}, info.Executors)
}

func TestApplyAddresses(t *testing.T) {
	require := require.New(t)

	env, _ := newTestEnv(t)
	require.NoError(Apply(env, &AddAllowedProtocol{ProtocolID: testProtocolID, ConsensusTargetRate: 5000}))

	require.NoError(Apply(env, &AddAllowedProtocolAddress{ProtocolID: testProtocolID, Address: ids.ID{9}}))
	require.NoError(Apply(env, &AddAllowedProposerAddress{ProtocolID: testProtocolID, Proposer: ids.ID{8}}))
	require.NoError(Apply(env, &AddExecutor{ProtocolID: testProtocolID, Executor: ids.ID{7}}))

	info, err := env.Registry.Protocol(testProtocolID)
	require.NoError(err)
	require.Equal([]ids.ID{{9}}, info.AllowedAddresses)
	require.Equal([]ids.ID{{7}}, info.Executors)
	ok, err := env.Registry.IsProposer(testProtocolID, ids.ID{8})
	require.NoError(err)
	require.True(ok)

	require.NoError(Apply(env, &RemoveAllowedProtocolAddress{ProtocolID: testProtocolID, Address: ids.ID{9}}))
	require.NoError(Apply(env, &RemoveAllowedProposerAddress{ProtocolID: testProtocolID, Proposer: ids.ID{8}}))
	require.NoError(Apply(env, &RemoveExecutor{ProtocolID: testProtocolID, Executor: ids.ID{7}}))
	require.ErrorIs(Apply(env, &RemoveExecutor{ProtocolID: testProtocolID, Executor: ids.ID{7}}), registry.ErrNotFound)
}
