// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package state provides buffered structured storage for the staking ledger.
//
// Writes accumulate in an in-memory journal and only reach the underlying
// kv store on Commit; Reset drops the journal. This is what gives every
// ledger operation its all-or-nothing semantics: the caller runs the whole
// mutation against the journal and commits only on success.
package state

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/kv"
)

const readCacheSize = 2048

// ErrValueOutOfRange is returned when persisting a quantity that does not
// fit an unsigned 256-bit integer.
var ErrValueOutOfRange = errors.New("value out of uint256 range")

// State is the journaled storage all ledger components read and write.
// It is not safe for concurrent use; the owning facade serializes access.
type State struct {
	store kv.GetPutter
	cache *lru.Cache             // committed raw values
	dirty map[common.Hash][]byte // journal; nil value marks a pending delete
}

// New creates a state over the given store.
func New(store kv.GetPutter) *State {
	cache, _ := lru.New(readCacheSize)
	return &State{
		store: store,
		cache: cache,
		dirty: make(map[common.Hash][]byte),
	}
}

func (s *State) raw(key common.Hash) ([]byte, error) {
	if data, ok := s.dirty[key]; ok {
		return data, nil
	}
	if data, ok := s.cache.Get(key); ok {
		return data.([]byte), nil
	}
	data, err := s.store.Get(key[:])
	if err != nil {
		if s.store.IsNotFound(err) {
			s.cache.Add(key, []byte(nil))
			return nil, nil
		}
		return nil, errors.Wrap(err, "state read")
	}
	s.cache.Add(key, data)
	return data, nil
}

func (s *State) setRaw(key common.Hash, data []byte) {
	s.dirty[key] = data
}

// Get decodes the RLP-encoded struct stored under key into val.
// Returns false if nothing is stored there.
func (s *State) Get(key common.Hash, val interface{}) (bool, error) {
	data, err := s.raw(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, val); err != nil {
		return false, errors.Wrap(err, "state decode")
	}
	return true, nil
}

// Set stores val under key, RLP encoded.
func (s *State) Set(key common.Hash, val interface{}) error {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return errors.Wrap(err, "state encode")
	}
	s.setRaw(key, data)
	return nil
}

// Delete removes the entry stored under key.
func (s *State) Delete(key common.Hash) {
	s.dirty[key] = nil
}

// GetBig returns the unsigned big integer stored under key, or zero if the
// slot is empty. The returned value is owned by the caller.
func (s *State) GetBig(key common.Hash) (*big.Int, error) {
	data, err := s.raw(key)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(data), nil
}

// SetBig stores an unsigned big integer under key. Values that are negative
// or exceed 256 bits fail with ErrValueOutOfRange.
func (s *State) SetBig(key common.Hash, val *big.Int) error {
	if _, overflow := uint256.FromBig(val); overflow || val.Sign() < 0 {
		return errors.WithMessagef(ErrValueOutOfRange, "set %x", key[:4])
	}
	s.setRaw(key, val.Bytes())
	return nil
}

// GetUint64 returns the uint64 stored under key, or zero for an empty slot.
func (s *State) GetUint64(key common.Hash) (uint64, error) {
	data, err := s.raw(key)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var buf [8]byte
	copy(buf[8-len(data):], data)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// SetUint64 stores a uint64 under key.
func (s *State) SetUint64(key common.Hash, val uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	s.setRaw(key, buf[:])
}

// GetAddress returns the address stored under key, or the zero address.
func (s *State) GetAddress(key common.Hash) (common.Address, error) {
	data, err := s.raw(key)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(data), nil
}

// SetAddress stores an address under key.
func (s *State) SetAddress(key common.Hash, addr common.Address) {
	s.setRaw(key, addr.Bytes())
}

// Commit writes the journal to the underlying store in a single batch and
// promotes the written values into the read cache.
func (s *State) Commit() error {
	if len(s.dirty) == 0 {
		return nil
	}
	batch := s.store.NewBatch()
	for key, data := range s.dirty {
		if data == nil {
			if err := batch.Delete(key[:]); err != nil {
				return errors.Wrap(err, "state commit")
			}
			continue
		}
		if err := batch.Put(key[:], data); err != nil {
			return errors.Wrap(err, "state commit")
		}
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "state commit")
	}
	for key, data := range s.dirty {
		s.cache.Add(key, data)
	}
	s.dirty = make(map[common.Hash][]byte)
	return nil
}

// Reset drops all uncommitted changes.
func (s *State) Reset() {
	s.dirty = make(map[common.Hash][]byte)
}
