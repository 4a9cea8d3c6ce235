// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package checkpoints maintains per-account voting power histories.
//
// Voting power is denominated in shares. Every power change appends a
// (block, power) checkpoint; a second change within the same block
// overwrites the last checkpoint, so each block number appears at most once
// per account. Historical lookups binary-search the sequence.
package checkpoints

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// Checkpoint records an account's voting power as of a block.
type Checkpoint struct {
	Block uint64
	Power *big.Int
}

var slotTotalCount = common.BytesToHash([]byte("ckpt-total-count"))

func countKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("ckpt-count"), addr.Bytes())
}

func entryKey(addr common.Address, index uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return crypto.Keccak256Hash([]byte("ckpt"), addr.Bytes(), buf[:])
}

func totalEntryKey(index uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return crypto.Keccak256Hash([]byte("ckpt-total"), buf[:])
}

// Index stores the checkpoint sequences.
type Index struct {
	st *state.State
}

// New creates an index over the given state.
func New(st *state.State) *Index {
	return &Index{st: st}
}

// Votes returns the current voting power of an account.
func (i *Index) Votes(addr common.Address) (*big.Int, error) {
	return i.latest(countKey(addr), func(n uint64) common.Hash { return entryKey(addr, n) })
}

// TotalShares returns the latest checkpointed total.
func (i *Index) TotalShares() (*big.Int, error) {
	return i.latest(slotTotalCount, totalEntryKey)
}

// NumCheckpoints returns the number of checkpoints recorded for an account.
func (i *Index) NumCheckpoints(addr common.Address) (uint64, error) {
	return i.st.GetUint64(countKey(addr))
}

// CheckpointAt returns the index-th checkpoint of an account.
func (i *Index) CheckpointAt(addr common.Address, index uint64) (*Checkpoint, error) {
	var cp Checkpoint
	found, err := i.st.Get(entryKey(addr, index), &cp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.New("checkpoint index out of range")
	}
	return &cp, nil
}

// PastVotes returns the voting power of an account at the end of the given
// block. The block must already be mined, i.e. strictly below current.
func (i *Index) PastVotes(addr common.Address, block, current uint64) (*big.Int, error) {
	if block >= current {
		return nil, xerrors.ErrBlockNotYetMined
	}
	return i.lookup(countKey(addr), func(n uint64) common.Hash { return entryKey(addr, n) }, block)
}

// PastTotalShares returns the checkpointed total at the end of the given
// block.
func (i *Index) PastTotalShares(block, current uint64) (*big.Int, error) {
	if block >= current {
		return nil, xerrors.ErrBlockNotYetMined
	}
	return i.lookup(slotTotalCount, totalEntryKey, block)
}

// MoveVotingPower shifts voting power between delegatees at the given block.
// The zero address on either side stands for "not delegated" and tracks no
// power.
func (i *Index) MoveVotingPower(from, to common.Address, power *big.Int, block uint64) error {
	if from == to || power.Sign() == 0 {
		return nil
	}
	if from != (common.Address{}) {
		if err := i.adjust(from, new(big.Int).Neg(power), block); err != nil {
			return err
		}
	}
	if to != (common.Address{}) {
		if err := i.adjust(to, power, block); err != nil {
			return err
		}
	}
	return nil
}

// RecordTotal checkpoints the total voting power at the given block. Equal
// consecutive values are skipped.
func (i *Index) RecordTotal(block uint64, total *big.Int) error {
	cur, err := i.TotalShares()
	if err != nil {
		return err
	}
	if cur.Cmp(total) == 0 {
		return nil
	}
	return i.push(slotTotalCount, totalEntryKey, block, total)
}

func (i *Index) adjust(addr common.Address, delta *big.Int, block uint64) error {
	cur, err := i.Votes(addr)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(cur, delta)
	if next.Sign() < 0 {
		return errors.Errorf("voting power of %x underflows", addr[:4])
	}
	return i.push(countKey(addr), func(n uint64) common.Hash { return entryKey(addr, n) }, block, next)
}

func (i *Index) latest(ck common.Hash, ek func(uint64) common.Hash) (*big.Int, error) {
	count, err := i.st.GetUint64(ck)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return new(big.Int), nil
	}
	var cp Checkpoint
	if _, err := i.st.Get(ek(count-1), &cp); err != nil {
		return nil, err
	}
	return cp.Power, nil
}

func (i *Index) push(ck common.Hash, ek func(uint64) common.Hash, block uint64, power *big.Int) error {
	count, err := i.st.GetUint64(ck)
	if err != nil {
		return err
	}
	if count > 0 {
		var last Checkpoint
		if _, err := i.st.Get(ek(count-1), &last); err != nil {
			return err
		}
		if last.Block == block {
			return i.st.Set(ek(count-1), &Checkpoint{Block: block, Power: power})
		}
		if last.Block > block {
			return errors.Errorf("checkpoint block regression: %d after %d", block, last.Block)
		}
	}
	if err := i.st.Set(ek(count), &Checkpoint{Block: block, Power: power}); err != nil {
		return err
	}
	i.st.SetUint64(ck, count+1)
	return nil
}

// lookup finds the power of the last checkpoint with Block <= block.
func (i *Index) lookup(ck common.Hash, ek func(uint64) common.Hash, block uint64) (*big.Int, error) {
	count, err := i.st.GetUint64(ck)
	if err != nil {
		return nil, err
	}
	lo, hi := uint64(0), count
	for lo < hi {
		mid := (lo + hi) / 2
		var cp Checkpoint
		if _, err := i.st.Get(ek(mid), &cp); err != nil {
			return nil, err
		}
		if cp.Block > block {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return new(big.Int), nil
	}
	var cp Checkpoint
	if _, err := i.st.Get(ek(lo-1), &cp); err != nil {
		return nil, err
	}
	return cp.Power, nil
}
