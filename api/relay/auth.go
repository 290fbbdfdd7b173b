// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/luxfi/ids"

	"github.com/luxfi/relay/utils/wrappers"
)

// MaxAuthWindow bounds how far in the future a request may expire.
const MaxAuthWindow = 5 * time.Minute

const maxDigestSize = 1 << 22

var (
	errMissingAuth   = errors.New("request is not signed")
	errInvalidAuth   = errors.New("request signature does not match the caller")
	errAuthExpired   = errors.New("request expired")
	errAuthTooFar    = errors.New("request expiry is too far in the future")
	errAuthReplayed  = errors.New("request was already served")
	errUnknownMethod = errors.New("unknown method")
)

// Auth proves that the caller holds the ed25519 key whose public key is the
// caller's 32-byte id.
type Auth struct {
	// Expiry in unix seconds.
	Expiry    hexutil.Uint64 `json:"expiry"`
	Signature hexutil.Bytes  `json:"signature"`
}

// Request is a call made on behalf of an executor or a proposer.
type Request interface {
	Caller() ids.ID
	Credentials() *Auth

	method() string
	pack(p *wrappers.Packer)
}

// NewRequest returns empty args for an authenticated method.
func NewRequest(method string) (Request, error) {
	switch method {
	case "Load":
		return &LoadArgs{}, nil
	case "Sign":
		return &SignArgs{}, nil
	case "Execute":
		return &ExecuteArgs{}, nil
	case "ExecuteGovernance":
		return &ExecuteGovernanceArgs{}, nil
	case "Propose":
		return &ProposeArgs{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMethod, method)
	}
}

// Digest is the hash the caller signs. It binds the method, the caller, the
// expiry and every argument the engine acts on.
func Digest(r Request) (common.Hash, error) {
	p := wrappers.Packer{MaxSize: maxDigestSize}
	p.PackStr(ServiceName + "." + r.method())
	caller := r.Caller()
	p.PackFixedBytes(caller[:])
	p.PackLong(uint64(r.Credentials().Expiry))
	r.pack(&p)
	if p.Err != nil {
		return common.Hash{}, p.Err
	}
	return crypto.Keccak256Hash(p.Bytes), nil
}

// Authorize signs r with key, valid until expiry.
func Authorize(r Request, key ed25519.PrivateKey, expiry time.Time) error {
	auth := r.Credentials()
	auth.Expiry = hexutil.Uint64(expiry.Unix())
	digest, err := Digest(r)
	if err != nil {
		return err
	}
	auth.Signature = ed25519.Sign(key, digest[:])
	return nil
}

// CallerID returns the id of the holder of key.
func CallerID(key ed25519.PrivateKey) ids.ID {
	return ids.ID(key.Public().(ed25519.PublicKey))
}

type authenticator struct {
	lock sync.Mutex
	// digest -> expiry of requests already served
	seen map[common.Hash]time.Time
}

func newAuthenticator() *authenticator {
	return &authenticator{seen: make(map[common.Hash]time.Time)}
}

func (a *authenticator) verify(r Request, now time.Time) error {
	auth := r.Credentials()
	if len(auth.Signature) == 0 {
		return errMissingAuth
	}
	if len(auth.Signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature length %d", errInvalidAuth, len(auth.Signature))
	}
	if uint64(auth.Expiry) > math.MaxInt64 {
		return errAuthTooFar
	}
	expiry := time.Unix(int64(auth.Expiry), 0)
	switch {
	case now.After(expiry):
		return fmt.Errorf("%w at %s", errAuthExpired, expiry.UTC())
	case expiry.Sub(now) > MaxAuthWindow:
		return fmt.Errorf("%w: %s", errAuthTooFar, expiry.UTC())
	}

	digest, err := Digest(r)
	if err != nil {
		return err
	}
	caller := r.Caller()
	if !ed25519.Verify(ed25519.PublicKey(caller[:]), digest[:], auth.Signature) {
		return fmt.Errorf("%w: %s", errInvalidAuth, caller)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	for d, exp := range a.seen {
		if now.After(exp) {
			delete(a.seen, d)
		}
	}
	if _, ok := a.seen[digest]; ok {
		return errAuthReplayed
	}
	a.seen[digest] = expiry
	return nil
}

func (a *LoadArgs) Caller() ids.ID     { return ids.ID(a.Executor) }
func (a *LoadArgs) Credentials() *Auth { return &a.Auth }
func (*LoadArgs) method() string       { return "Load" }

func (a *LoadArgs) pack(p *wrappers.Packer) {
	// The engine rejects an operation that does not hash to Hash.
	p.PackFixedBytes(a.Hash[:])
}

func (a *SignArgs) Caller() ids.ID     { return ids.ID(a.Executor) }
func (a *SignArgs) Credentials() *Auth { return &a.Auth }
func (*SignArgs) method() string       { return "Sign" }

func (a *SignArgs) pack(p *wrappers.Packer) {
	p.PackFixedBytes(a.Hash[:])
	p.PackInt(uint32(len(a.Signatures)))
	for _, sig := range a.Signatures {
		p.PackFixedBytes(sig.Bytes())
	}
}

func (a *ExecuteArgs) Caller() ids.ID     { return ids.ID(a.Executor) }
func (a *ExecuteArgs) Credentials() *Auth { return &a.Auth }
func (*ExecuteArgs) method() string       { return "Execute" }

func (a *ExecuteArgs) pack(p *wrappers.Packer) {
	p.PackFixedBytes(a.Hash[:])
	p.PackInt(uint32(len(a.Accounts)))
	for _, account := range a.Accounts {
		p.PackFixedBytes(account[:])
	}
}

func (a *ExecuteGovernanceArgs) Caller() ids.ID     { return ids.ID(a.Executor) }
func (a *ExecuteGovernanceArgs) Credentials() *Auth { return &a.Auth }
func (*ExecuteGovernanceArgs) method() string       { return "ExecuteGovernance" }

func (a *ExecuteGovernanceArgs) pack(p *wrappers.Packer) {
	p.PackFixedBytes(a.Hash[:])
	p.PackStr(a.TargetProtocol)
}

func (a *ProposeArgs) Caller() ids.ID     { return ids.ID(a.Proposer) }
func (a *ProposeArgs) Credentials() *Auth { return &a.Auth }
func (*ProposeArgs) method() string       { return "Propose" }

func (a *ProposeArgs) pack(p *wrappers.Packer) {
	p.PackStr(a.ProtocolID)
	p.PackStr(a.DestChainID)
	p.PackBytes(a.ProtocolAddress)
	selector, err := a.Selector.Bytes()
	p.Add(err)
	p.PackBytes(selector)
	p.PackBytes(a.Params)
}
