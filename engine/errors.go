// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import "errors"

var (
	ErrAlreadyInitialized     = errors.New("relay already initialized")
	ErrNotInitialized         = errors.New("relay not initialized")
	ErrHashMismatch           = errors.New("operation hash mismatch")
	ErrOpIsNotForThisChain    = errors.New("operation is not for this chain")
	ErrInvalidOpData          = errors.New("invalid operation data")
	ErrExecutorNotAllowed     = errors.New("executor is not allowed")
	ErrProposerNotAllowed     = errors.New("proposer is not allowed")
	ErrAlreadyLoaded          = errors.New("operation already loaded")
	ErrOperationNotFound      = errors.New("operation not found")
	ErrChunkTooLarge          = errors.New("too many signatures in one call")
	ErrNoTransmitters         = errors.New("no transmitters allowed")
	ErrUnknownTransmitter     = errors.New("signer is not a transmitter")
	ErrNotEnoughSignatures    = errors.New("not enough signatures")
	ErrAlreadyExecuted        = errors.New("operation already executed")
	ErrTargetNotAllowed       = errors.New("target address is not allowed")
	ErrNotGovernance          = errors.New("operation is not a governance operation")
	ErrTargetProtocolMismatch = errors.New("target protocol mismatch")
)
