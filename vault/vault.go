// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package vault provides the staking pool the ledger settles against.
//
// Memory is an in-process pool with the consensus-layer semantics the
// ledger depends on: deposits are locked immediately, withdrawals must be
// requested and mature after a lockup period, and rewards show up as
// unaccounted pool value.
package vault

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// DefaultLockup is the withdrawal maturity period of the Klaytn consensus
// layer.
const DefaultLockup = 7 * 24 * 3600

// ErrUnknownWithdrawal is returned for request ids that are not pending.
var ErrUnknownWithdrawal = errors.New("unknown withdrawal request")

// ErrNotMatured is returned when withdrawing before the lockup has passed.
var ErrNotMatured = errors.New("withdrawal not matured")

type withdrawal struct {
	amount           *big.Int
	withdrawableFrom uint64
}

// Memory is an in-memory staking pool.
type Memory struct {
	mu      sync.Mutex
	now     func() uint64
	lockup  uint64
	pool    *big.Int
	nextID  uint64
	pending map[uint64]*withdrawal
	paid    map[common.Address]*big.Int
}

// NewMemory creates a pool. A zero lockup selects DefaultLockup; now
// provides the pool's clock.
func NewMemory(lockup uint64, now func() uint64) *Memory {
	if lockup == 0 {
		lockup = DefaultLockup
	}
	return &Memory{
		now:     now,
		lockup:  lockup,
		pool:    new(big.Int),
		pending: make(map[uint64]*withdrawal),
		paid:    make(map[common.Address]*big.Int),
	}
}

// Deposit locks amount into the pool.
func (m *Memory) Deposit(amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.New("negative deposit")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.Add(m.pool, amount)
	return nil
}

// AddReward grows the pool without a deposit, the way consensus rewards
// accrue.
func (m *Memory) AddReward(amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pool.Add(m.pool, amount)
}

// PoolValue returns the currently observable pool value. Pending
// withdrawals stay part of the pool until actually withdrawn.
func (m *Memory) PoolValue() (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.pool), nil
}

// RequestWithdrawal schedules amount for withdrawal and returns the request
// id along with the time the funds mature.
func (m *Memory) RequestWithdrawal(amount *big.Int) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pool.Cmp(amount) < 0 {
		return 0, 0, errors.New("withdrawal exceeds pool")
	}
	id := m.nextID
	m.nextID++
	withdrawableFrom := m.now() + m.lockup
	m.pending[id] = &withdrawal{
		amount:           new(big.Int).Set(amount),
		withdrawableFrom: withdrawableFrom,
	}
	return id, withdrawableFrom, nil
}

// CancelWithdrawal releases a pending withdrawal back into the pool.
func (m *Memory) CancelWithdrawal(requestID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[requestID]; !ok {
		return ErrUnknownWithdrawal
	}
	delete(m.pending, requestID)
	return nil
}

// Withdraw pays a matured withdrawal out to the given address.
func (m *Memory) Withdraw(requestID uint64, to common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.pending[requestID]
	if !ok {
		return ErrUnknownWithdrawal
	}
	if m.now() < w.withdrawableFrom {
		return ErrNotMatured
	}
	delete(m.pending, requestID)
	m.pool.Sub(m.pool, w.amount)
	if m.paid[to] == nil {
		m.paid[to] = new(big.Int)
	}
	m.paid[to].Add(m.paid[to], w.amount)
	return nil
}

// PaidTo returns the total amount withdrawn to an address. Test helper.
func (m *Memory) PaidTo(addr common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paid[addr] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(m.paid[addr])
}

// PendingCount returns the number of unsettled withdrawal requests.
func (m *Memory) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
