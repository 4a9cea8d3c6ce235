// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package fortest provides fixtures shared by tests.
package fortest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known test accounts.
var (
	Alice = common.BytesToAddress([]byte("alice"))
	Bob   = common.BytesToAddress([]byte("bob"))
	Carol = common.BytesToAddress([]byte("carol"))
	Dave  = common.BytesToAddress([]byte("dave"))
	FeeTo = common.BytesToAddress([]byte("fee-to"))
	Owner = common.BytesToAddress([]byte("owner"))
)

// Env is a synthetic chain clock. Tests advance it explicitly.
type Env struct {
	Block uint64
	Time  uint64
}

// NewEnv starts at block 1 so block 0 is always in the past.
func NewEnv() *Env {
	return &Env{Block: 1, Time: 1}
}

// BlockNumber returns the current block number.
func (e *Env) BlockNumber() uint64 { return e.Block }

// Now returns the current unix time.
func (e *Env) Now() uint64 { return e.Time }

// NextBlock advances one block and one second.
func (e *Env) NextBlock() {
	e.Block++
	e.Time++
}

// AdvanceTime moves the clock forward, minting a block on the way.
func (e *Env) AdvanceTime(seconds uint64) {
	e.Block++
	e.Time += seconds
}

// Ether returns n * 10^18.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}
