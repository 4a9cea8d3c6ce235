// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package sweeper

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swapscanner/klaystaking-core/lvldb"
	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/staking/ledger"
)

var (
	alice = common.BytesToAddress([]byte("alice"))
	bob   = common.BytesToAddress([]byte("bob"))
	feeTo = common.BytesToAddress([]byte("fee"))
)

type fakePool struct{ value *big.Int }

func (p *fakePool) PoolValue() (*big.Int, error) { return new(big.Int).Set(p.value), nil }

type fakeUnstaking struct{ total *big.Int }

func (u *fakeUnstaking) UnstakingTotal() (*big.Int, error) { return new(big.Int).Set(u.total), nil }

type fixture struct {
	ledger    *ledger.Ledger
	pool      *fakePool
	unstaking *fakeUnstaking
	sweeper   *Sweeper
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	st := state.New(db)
	f := &fixture{
		ledger:    ledger.New(st),
		pool:      &fakePool{value: new(big.Int)},
		unstaking: &fakeUnstaking{total: new(big.Int)},
	}
	f.sweeper = New(f.ledger, f.pool, f.unstaking)
	return f
}

func (f *fixture) balance(t *testing.T, addr common.Address) *big.Int {
	b, err := f.ledger.BalanceOf(addr)
	require.Nil(t, err)
	return b
}

func TestSweepNoSurplus(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(4))
	require.Nil(t, err)

	// observed == accounted
	f.pool.value = big.NewInt(4)
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, 0, res.Delta.Sign())

	// a deficit is also a no-op
	f.pool.value = big.NewInt(3)
	res, err = f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, 0, res.Delta.Sign())
	assert.Equal(t, big.NewInt(4), f.balance(t, alice))
}

func TestSweepDistributesWithoutFee(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(1))
	require.Nil(t, err)
	_, err = f.ledger.MintSharesForAmount(bob, big.NewInt(3))
	require.Nil(t, err)

	f.pool.value = big.NewInt(8)
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(4), res.Delta)
	assert.Equal(t, big.NewInt(4), res.Distributed)
	assert.Equal(t, 0, res.Fee.Sign())

	assert.Equal(t, big.NewInt(2), f.balance(t, alice))
	assert.Equal(t, big.NewInt(6), f.balance(t, bob))
}

func TestSweepSkimsFee(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(2))
	require.Nil(t, err)
	_, err = f.ledger.MintSharesForAmount(bob, big.NewInt(2))
	require.Nil(t, err)
	require.Nil(t, f.ledger.SetFee(feeTo, 25, 100))

	f.pool.value = big.NewInt(8)
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(4), res.Delta)
	assert.Equal(t, big.NewInt(3), res.Distributed)
	assert.Equal(t, big.NewInt(1), res.Fee)
	assert.Equal(t, feeTo, res.FeeTo)
	assert.True(t, res.FeeShares.Sign() > 0)

	supply, err := f.ledger.TotalSupply()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(8), supply)

	// the distribution is a rebase; balances view it floored
	assert.Equal(t, big.NewInt(3), f.balance(t, alice))
	assert.Equal(t, big.NewInt(3), f.balance(t, bob))
}

func TestSweepUnstakingRewardGoesToFeeTo(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(2))
	require.Nil(t, err)
	_, err = f.ledger.MintSharesForAmount(bob, big.NewInt(2))
	require.Nil(t, err)
	require.Nil(t, f.ledger.SetFee(feeTo, 0, 100))
	f.unstaking.total = big.NewInt(2)

	// accounted = 4 + 2, observed 9 -> delta 3; a third of the reward was
	// earned by unstaking principal and belongs to the operator
	f.pool.value = big.NewInt(9)
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(3), res.Delta)
	assert.Equal(t, big.NewInt(2), res.Distributed)
	assert.Equal(t, big.NewInt(1), res.Fee)

	assert.Equal(t, big.NewInt(3), f.balance(t, alice))
	assert.Equal(t, big.NewInt(3), f.balance(t, bob))

	supply, err := f.ledger.TotalSupply()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(7), supply)
}

func TestSweepUnstakingRewardWithoutFeeTo(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(4))
	require.Nil(t, err)
	f.unstaking.total = big.NewInt(2)

	// without a fee recipient the whole surplus goes to stakers
	f.pool.value = big.NewInt(9)
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(3), res.Distributed)
	assert.Equal(t, 0, res.Fee.Sign())
	assert.Equal(t, big.NewInt(7), f.balance(t, alice))
}

func TestSweepBootstrapSurplus(t *testing.T) {
	f := newFixture(t)
	f.pool.value = big.NewInt(10)

	// nobody staked yet and no fee recipient: leave the surplus alone
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, 0, res.Delta.Sign())

	// with a recipient the whole surplus is attributed to the operator
	require.Nil(t, f.ledger.SetFee(feeTo, 10, 100))
	res, err = f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(10), res.Delta)
	assert.Equal(t, big.NewInt(10), res.Fee)
	assert.Equal(t, big.NewInt(10), f.balance(t, feeTo))
}

func TestSweepIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.MintSharesForAmount(alice, big.NewInt(4))
	require.Nil(t, err)

	f.pool.value = big.NewInt(8)
	_, err = f.sweeper.Sweep()
	require.Nil(t, err)

	// the surplus is settled; sweeping again finds nothing
	res, err := f.sweeper.Sweep()
	require.Nil(t, err)
	assert.Equal(t, 0, res.Delta.Sign())
	assert.Equal(t, big.NewInt(8), f.balance(t, alice))
}
