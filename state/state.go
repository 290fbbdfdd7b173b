// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the protocol registry, the operation ledger and the
// relay config. Writes are buffered until Commit so that a failed call can be
// dropped with Abort.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/cache"
	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"

	"github.com/luxfi/relay/operation"
)

const (
	protocolCacheSize  = 256
	operationCacheSize = 4096
)

var (
	_ State = (*state)(nil)

	protocolPrefix  = []byte("protocol")
	operationPrefix = []byte("operation")
	configPrefix    = []byte("config")
	accountPrefix   = []byte("account")

	configKey = []byte("config")
)

// State is a transactional view over the relay database. It is not safe for
// concurrent writers; callers serialize mutation and Commit/Abort.
type State interface {
	// GetConfig returns database.ErrNotFound before initialization.
	GetConfig() (*Config, error)
	PutConfig(*Config)

	// GetProtocol returns database.ErrNotFound for unknown protocols. The
	// returned value is a copy.
	GetProtocol(id operation.ProtocolID) (*ProtocolInfo, error)
	PutProtocol(*ProtocolInfo)

	// GetOperation returns database.ErrNotFound for unknown hashes. The
	// returned value is a copy.
	GetOperation(hash common.Hash) (*OpInfo, error)
	PutOperation(*OpInfo)

	// AccountDB is the key space owned by a protocol. Writes to it are
	// committed and aborted together with the rest of the state.
	AccountDB(id operation.ProtocolID) database.Database

	Commit() error
	Abort()
}

type state struct {
	baseDB *versiondb.Database

	protocolDB  database.Database
	operationDB database.Database
	configDB    database.Database
	accountDB   database.Database

	protocolCache  *cache.LRU[operation.ProtocolID, *ProtocolInfo]
	operationCache *cache.LRU[common.Hash, *OpInfo]

	modifiedProtocols  map[operation.ProtocolID]*ProtocolInfo
	modifiedOperations map[common.Hash]*OpInfo
	modifiedConfig     *Config
}

func New(db database.Database) State {
	baseDB := versiondb.New(db)
	return &state{
		baseDB:             baseDB,
		protocolDB:         prefixdb.New(protocolPrefix, baseDB),
		operationDB:        prefixdb.New(operationPrefix, baseDB),
		configDB:           prefixdb.New(configPrefix, baseDB),
		accountDB:          prefixdb.New(accountPrefix, baseDB),
		protocolCache:      &cache.LRU[operation.ProtocolID, *ProtocolInfo]{Size: protocolCacheSize},
		operationCache:     &cache.LRU[common.Hash, *OpInfo]{Size: operationCacheSize},
		modifiedProtocols:  make(map[operation.ProtocolID]*ProtocolInfo),
		modifiedOperations: make(map[common.Hash]*OpInfo),
	}
}

func (s *state) GetConfig() (*Config, error) {
	if s.modifiedConfig != nil {
		c := *s.modifiedConfig
		return &c, nil
	}
	b, err := s.configDB.Get(configKey)
	if err != nil {
		return nil, err
	}
	return unmarshalConfig(b)
}

func (s *state) PutConfig(c *Config) {
	cp := *c
	s.modifiedConfig = &cp
}

func (s *state) GetProtocol(id operation.ProtocolID) (*ProtocolInfo, error) {
	if info, ok := s.modifiedProtocols[id]; ok {
		return info.Clone(), nil
	}
	if info, ok := s.protocolCache.Get(id); ok {
		return info.Clone(), nil
	}

	b, err := s.protocolDB.Get(id[:])
	if err != nil {
		return nil, err
	}
	info, err := unmarshalProtocolInfo(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse protocol %s: %w", id, err)
	}
	s.protocolCache.Put(id, info)
	return info.Clone(), nil
}

func (s *state) PutProtocol(info *ProtocolInfo) {
	s.modifiedProtocols[info.ID] = info.Clone()
}

func (s *state) GetOperation(hash common.Hash) (*OpInfo, error) {
	if info, ok := s.modifiedOperations[hash]; ok {
		return info.Clone(), nil
	}
	if info, ok := s.operationCache.Get(hash); ok {
		return info.Clone(), nil
	}

	b, err := s.operationDB.Get(hash[:])
	if err != nil {
		return nil, err
	}
	info, err := unmarshalOpInfo(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operation %s: %w", hash, err)
	}
	s.operationCache.Put(hash, info)
	return info.Clone(), nil
}

func (s *state) PutOperation(info *OpInfo) {
	s.modifiedOperations[info.Hash] = info.Clone()
}

func (s *state) AccountDB(id operation.ProtocolID) database.Database {
	return prefixdb.New(id[:], s.accountDB)
}

// Commit writes the buffered changes and flushes them to the underlying
// database. The buffers are cleared whether or not it succeeds.
func (s *state) Commit() error {
	defer s.Abort()

	if err := s.write(); err != nil {
		return err
	}
	if err := s.baseDB.Commit(); err != nil {
		return err
	}

	for id, info := range s.modifiedProtocols {
		s.protocolCache.Put(id, info)
	}
	for hash, info := range s.modifiedOperations {
		s.operationCache.Put(hash, info)
	}
	return nil
}

// Abort drops every change made since the last Commit, including writes to
// account databases.
func (s *state) Abort() {
	s.baseDB.Abort()
	clear(s.modifiedProtocols)
	clear(s.modifiedOperations)
	s.modifiedConfig = nil
}

func (s *state) write() error {
	if s.modifiedConfig != nil {
		b, err := marshalConfig(s.modifiedConfig)
		if err != nil {
			return fmt.Errorf("failed to serialize config: %w", err)
		}
		if err := s.configDB.Put(configKey, b); err != nil {
			return err
		}
	}
	for id, info := range s.modifiedProtocols {
		b, err := marshalProtocolInfo(info)
		if err != nil {
			return fmt.Errorf("failed to serialize protocol %s: %w", id, err)
		}
		if err := s.protocolDB.Put(id[:], b); err != nil {
			return err
		}
	}
	for hash, info := range s.modifiedOperations {
		b, err := marshalOpInfo(info)
		if err != nil {
			return fmt.Errorf("failed to serialize operation %s: %w", hash, err)
		}
		if err := s.operationDB.Put(hash[:], b); err != nil {
			return err
		}
	}
	return nil
}
