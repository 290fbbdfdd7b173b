// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch routes executed operations to the programs they address.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/operation"
)

//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/target.go -mock_names=Target=Target . Target

var (
	ErrTargetNotFound    = errors.New("target not found")
	ErrAlreadyRegistered = errors.New("target already registered")
)

// Call is what a target receives once an operation reached consensus. The
// relay only attests that the operation was signed by enough transmitters;
// targets authorize the call themselves.
type Call struct {
	ProtocolID operation.ProtocolID
	OpHash     common.Hash
	// Executor submitted the execution.
	Executor ids.ID
	Address  ids.ID
	Selector operation.Selector
	Params   []byte
	// Accounts are passed through from the executor untouched.
	Accounts []ids.ID
	// DB is the protocol's account space. Writes are discarded if the call
	// fails.
	DB database.Database
}

// Target is a program that can receive relayed calls.
type Target interface {
	Execute(ctx context.Context, call *Call) error
}

// Router maps destination addresses to targets.
type Router struct {
	lock    sync.RWMutex
	targets map[ids.ID]Target
}

func NewRouter() *Router {
	return &Router{
		targets: make(map[ids.ID]Target),
	}
}

func (r *Router) Register(addr ids.ID, target Target) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.targets[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, addr)
	}
	r.targets[addr] = target
	return nil
}

func (r *Router) Deregister(addr ids.ID) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.targets, addr)
}

func (r *Router) Get(addr ids.ID) (Target, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	target, ok := r.targets[addr]
	return target, ok
}

// Dispatch forwards call to the target registered at call.Address.
func (r *Router) Dispatch(ctx context.Context, call *Call) error {
	target, ok := r.Get(call.Address)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, call.Address)
	}
	return target.Execute(ctx, call)
}
