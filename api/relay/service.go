// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay exposes the relay engine over JSON-RPC.
package relay

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/relay/engine"
	"github.com/luxfi/relay/operation"
	"github.com/luxfi/relay/signature"
	"github.com/luxfi/relay/state"
)

const ServiceName = "relay"

// Service provides JSON-RPC endpoints for the relay engine.
// Calls acting as an executor or proposer must be signed with the caller's
// key, see Authorize.
type Service struct {
	log    log.Logger
	engine *engine.Engine
	auth   *authenticator
}

// NewService returns a JSON-RPC handler serving e.
func NewService(log log.Logger, e *engine.Engine) (http.Handler, error) {
	server := rpc.NewServer()
	codec := json2.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	return server, server.RegisterService(
		&Service{
			log:    log,
			engine: e,
			auth:   newAuthenticator(),
		},
		ServiceName,
	)
}

// Destination-chain keys travel as 32-byte hex.

func toHashes(list []ids.ID) []common.Hash {
	hashes := make([]common.Hash, len(list))
	for i, id := range list {
		hashes[i] = common.Hash(id)
	}
	return hashes
}

func toIDs(list []common.Hash) []ids.ID {
	if len(list) == 0 {
		return nil
	}
	out := make([]ids.ID, len(list))
	for i, hash := range list {
		out[i] = ids.ID(hash)
	}
	return out
}

type OperationReply struct {
	Hash           common.Hash         `json:"hash"`
	Status         string              `json:"status"`
	SignatureCount hexutil.Uint64      `json:"signatureCount"`
	Signers        []common.Address    `json:"signers"`
	Operation      operation.Operation `json:"operation"`
}

func (r *OperationReply) set(info *state.OpInfo) {
	r.Hash = info.Hash
	r.Status = info.Status.String()
	r.SignatureCount = hexutil.Uint64(info.SignatureCount())
	r.Signers = info.Signers
	r.Operation = info.Operation
}

type LoadArgs struct {
	Auth      Auth                `json:"auth"`
	Executor  common.Hash         `json:"executor"`
	Hash      common.Hash         `json:"hash"`
	Operation operation.Operation `json:"operation"`
}

// Load records an operation for signing.
func (s *Service) Load(_ *http.Request, args *LoadArgs, reply *OperationReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "load"),
		log.Stringer("opHash", args.Hash),
	)

	if err := s.auth.verify(args, time.Now()); err != nil {
		return err
	}
	info, err := s.engine.Load(ids.ID(args.Executor), &args.Operation, args.Hash)
	if err != nil {
		return err
	}
	reply.set(info)
	return nil
}

type SignArgs struct {
	Auth       Auth                  `json:"auth"`
	Executor   common.Hash           `json:"executor"`
	Hash       common.Hash           `json:"hash"`
	Signatures []signature.Signature `json:"signatures"`
}

type SignReply struct {
	Status           string         `json:"status"`
	SignatureCount   hexutil.Uint64 `json:"signatureCount"`
	Accepted         int            `json:"accepted"`
	Duplicates       int            `json:"duplicates"`
	ConsensusReached bool           `json:"consensusReached"`
}

// Sign submits a batch of transmitter signatures.
func (s *Service) Sign(_ *http.Request, args *SignArgs, reply *SignReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "sign"),
		log.Stringer("opHash", args.Hash),
		log.Int("signatures", len(args.Signatures)),
	)

	if err := s.auth.verify(args, time.Now()); err != nil {
		return err
	}
	result, err := s.engine.Sign(ids.ID(args.Executor), args.Hash, args.Signatures)
	if err != nil {
		return err
	}
	reply.Status = result.Status.String()
	reply.SignatureCount = hexutil.Uint64(result.SignatureCount)
	reply.Accepted = result.Accepted
	reply.Duplicates = result.Duplicates
	reply.ConsensusReached = result.ConsensusReached
	return nil
}

type ExecuteArgs struct {
	Auth     Auth          `json:"auth"`
	Executor common.Hash   `json:"executor"`
	Hash     common.Hash   `json:"hash"`
	Accounts []common.Hash `json:"accounts"`
}

// Execute delivers a signed operation.
func (s *Service) Execute(r *http.Request, args *ExecuteArgs, reply *OperationReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "execute"),
		log.Stringer("opHash", args.Hash),
	)

	if err := s.auth.verify(args, time.Now()); err != nil {
		return err
	}
	info, err := s.engine.Execute(r.Context(), ids.ID(args.Executor), args.Hash, toIDs(args.Accounts))
	if err != nil {
		return err
	}
	reply.set(info)
	return nil
}

type ExecuteGovernanceArgs struct {
	Auth           Auth        `json:"auth"`
	Executor       common.Hash `json:"executor"`
	Hash           common.Hash `json:"hash"`
	TargetProtocol string      `json:"targetProtocol"`
}

// ExecuteGovernance applies a signed governance operation to the named
// protocol.
func (s *Service) ExecuteGovernance(r *http.Request, args *ExecuteGovernanceArgs, reply *OperationReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "executeGovernance"),
		log.Stringer("opHash", args.Hash),
	)

	if err := s.auth.verify(args, time.Now()); err != nil {
		return err
	}
	target, err := operation.NewProtocolID(args.TargetProtocol)
	if err != nil {
		return err
	}
	info, err := s.engine.ExecuteGovernance(r.Context(), ids.ID(args.Executor), args.Hash, target)
	if err != nil {
		return err
	}
	reply.set(info)
	return nil
}

type ProposeArgs struct {
	Auth            Auth               `json:"auth"`
	Proposer        common.Hash        `json:"proposer"`
	ProtocolID      string             `json:"protocolId"`
	DestChainID     string             `json:"destChainId"`
	ProtocolAddress hexutil.Bytes      `json:"protocolAddress"`
	Selector        operation.Selector `json:"selector"`
	Params          hexutil.Bytes      `json:"params"`
}

type ProposeReply struct {
	Nonce hexutil.Uint64 `json:"nonce"`
}

// Propose emits an outbound operation.
func (s *Service) Propose(_ *http.Request, args *ProposeArgs, reply *ProposeReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "propose"),
		log.String("protocolID", args.ProtocolID),
	)

	if err := s.auth.verify(args, time.Now()); err != nil {
		return err
	}
	protocolID, err := operation.NewProtocolID(args.ProtocolID)
	if err != nil {
		return err
	}
	destChainID, err := uint256.FromDecimal(args.DestChainID)
	if err != nil {
		return err
	}
	event, err := s.engine.Propose(
		ids.ID(args.Proposer),
		protocolID,
		*destChainID,
		args.ProtocolAddress,
		args.Selector,
		args.Params,
	)
	if err != nil {
		return err
	}
	reply.Nonce = hexutil.Uint64(event.Nonce)
	return nil
}

type GetProtocolArgs struct {
	ProtocolID string `json:"protocolId"`
}

type GetProtocolReply struct {
	ProtocolID          string           `json:"protocolId"`
	ConsensusTargetRate hexutil.Uint64   `json:"consensusTargetRate"`
	Transmitters        []common.Address `json:"transmitters"`
	Executors           []common.Hash    `json:"executors"`
	AllowedAddresses    []common.Hash    `json:"allowedAddresses"`
	Proposers           []common.Hash    `json:"proposers"`
}

// GetProtocol returns a registry entry and its proposers.
func (s *Service) GetProtocol(_ *http.Request, args *GetProtocolArgs, reply *GetProtocolReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "getProtocol"),
		log.String("protocolID", args.ProtocolID),
	)

	id, err := operation.NewProtocolID(args.ProtocolID)
	if err != nil {
		return err
	}
	info, err := s.engine.ProtocolInfo(id)
	if err != nil {
		return err
	}
	proposers, err := s.engine.Proposers(id)
	if err != nil {
		return err
	}
	reply.ProtocolID = info.ID.String()
	reply.ConsensusTargetRate = hexutil.Uint64(info.ConsensusTargetRate)
	reply.Transmitters = info.Transmitters
	reply.Executors = toHashes(info.Executors)
	reply.AllowedAddresses = toHashes(info.AllowedAddresses)
	reply.Proposers = toHashes(proposers)
	return nil
}

type GetOperationArgs struct {
	Hash common.Hash `json:"hash"`
}

// GetOperation returns the ledger entry of a loaded operation.
func (s *Service) GetOperation(_ *http.Request, args *GetOperationArgs, reply *OperationReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "getOperation"),
		log.Stringer("opHash", args.Hash),
	)

	info, err := s.engine.OperationInfo(args.Hash)
	if err != nil {
		return err
	}
	reply.set(info)
	return nil
}

type GetConfigReply struct {
	EOBChainID        string         `json:"eobChainId"`
	EOBMasterContract common.Address `json:"eobMasterContract"`
	Nonce             hexutil.Uint64 `json:"nonce"`
}

// GetConfig returns the relay-wide configuration.
func (s *Service) GetConfig(_ *http.Request, _ *struct{}, reply *GetConfigReply) error {
	s.log.Debug("API called",
		log.String("service", ServiceName),
		log.String("method", "getConfig"),
	)

	config, err := s.engine.RelayConfig()
	if err != nil {
		return err
	}
	reply.EOBChainID = config.EOBChainID.Dec()
	reply.EOBMasterContract = config.EOBMasterContract
	reply.Nonce = hexutil.Uint64(config.Nonce)
	return nil
}
