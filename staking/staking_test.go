// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package staking

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swapscanner/klaystaking-core/fortest"
	"github.com/Swapscanner/klaystaking-core/lvldb"
	"github.com/Swapscanner/klaystaking-core/nft"
	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/staking/claimcheck"
	"github.com/Swapscanner/klaystaking-core/vault"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

type fixture struct {
	svc   *Service
	vault *vault.Memory
	nft   *nft.Registry
	env   *fortest.Env
	stats []*big.Int
}

func newFixture(t *testing.T) *fixture {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		env: fortest.NewEnv(),
		nft: nft.NewRegistry(),
	}
	f.vault = vault.NewMemory(0, f.env.Now)
	f.svc = New(state.New(db), f.vault, f.nft, f.env, Options{
		Owner: fortest.Owner,
		OnStats: func(totalShares, totalSupply *big.Int) {
			f.stats = append(f.stats, totalSupply)
		},
	})
	return f
}

func (f *fixture) balance(t *testing.T, addr common.Address) *big.Int {
	b, err := f.svc.BalanceOf(addr)
	require.Nil(t, err)
	return b
}

func TestStake(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	assert.Equal(t, big.NewInt(100), f.balance(t, fortest.Alice))

	pool, err := f.vault.PoolValue()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), pool)

	supply, err := f.svc.TotalSupply()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), supply)
}

func TestStakeFor(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.svc.StakeFor(fortest.Alice, fortest.Bob, big.NewInt(50)))
	assert.Equal(t, 0, f.balance(t, fortest.Alice).Sign())
	assert.Equal(t, big.NewInt(50), f.balance(t, fortest.Bob))
}

func TestStakeZeroIsSweep(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	f.vault.AddReward(big.NewInt(10))
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(0)))
	assert.Equal(t, big.NewInt(110), f.balance(t, fortest.Alice))
}

func TestRewardsDistributeProRata(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	require.Nil(t, f.svc.Stake(fortest.Bob, big.NewInt(300)))

	f.vault.AddReward(big.NewInt(40))

	// balances are as of the last sweep
	assert.Equal(t, big.NewInt(100), f.balance(t, fortest.Alice))

	require.Nil(t, f.svc.Sweep())
	assert.Equal(t, big.NewInt(110), f.balance(t, fortest.Alice))
	assert.Equal(t, big.NewInt(330), f.balance(t, fortest.Bob))
}

func TestOperationsSweepFirst(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	// the reward is settled by the transfer itself, so the full 110 moves
	f.vault.AddReward(big.NewInt(10))
	require.Nil(t, f.svc.Transfer(fortest.Alice, fortest.Bob, big.NewInt(110)))
	assert.Equal(t, 0, f.balance(t, fortest.Alice).Sign())
	assert.Equal(t, big.NewInt(110), f.balance(t, fortest.Bob))

	shares, err := f.svc.SharesOf(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, 0, shares.Sign())
}

func TestUnstakeAndClaim(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	tokenID, err := f.svc.Unstake(fortest.Alice, big.NewInt(40))
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(60), f.balance(t, fortest.Alice))

	unstaking, err := f.svc.UnstakingTotal()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(40), unstaking)

	status, err := f.svc.ClaimCheckStatus(tokenID)
	require.Nil(t, err)
	assert.Equal(t, claimcheck.StatusPending, status)
	assert.ErrorIs(t, f.svc.Claim(fortest.Alice, tokenID), xerrors.ErrNotYetWithdrawable)

	f.env.AdvanceTime(vault.DefaultLockup)
	status, err = f.svc.ClaimCheckStatus(tokenID)
	require.Nil(t, err)
	assert.Equal(t, claimcheck.StatusValid, status)

	require.Nil(t, f.svc.Claim(fortest.Alice, tokenID))
	assert.Equal(t, big.NewInt(40), f.vault.PaidTo(fortest.Alice))

	pool, err := f.vault.PoolValue()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(60), pool)
}

func TestUnstakeAll(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	// the pending reward is swept in, so the whole 110 is unstaked
	f.vault.AddReward(big.NewInt(10))
	_, err := f.svc.UnstakeAll(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, 0, f.balance(t, fortest.Alice).Sign())

	unstaking, err := f.svc.UnstakingTotal()
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(110), unstaking)

	// nothing left to unstake
	_, err = f.svc.UnstakeAll(fortest.Alice)
	assert.ErrorIs(t, err, xerrors.ErrAmountTooSmall)
}

func TestClaimExpiredRestakes(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	tokenID, err := f.svc.Unstake(fortest.Alice, big.NewInt(40))
	require.Nil(t, err)

	// hand the claim check to bob, then let it expire
	require.Nil(t, f.nft.TransferFrom(fortest.Alice, fortest.Alice, fortest.Bob, tokenID))
	f.env.AdvanceTime(vault.DefaultLockup + claimcheck.DefaultExpiryWindow)

	status, err := f.svc.ClaimCheckStatus(tokenID)
	require.Nil(t, err)
	assert.Equal(t, claimcheck.StatusExpired, status)

	require.Nil(t, f.svc.Claim(fortest.Bob, tokenID))
	assert.Equal(t, 0, f.vault.PaidTo(fortest.Bob).Sign())
	assert.Equal(t, big.NewInt(40), f.balance(t, fortest.Bob))
}

func TestCancelUnstaking(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	tokenID, err := f.svc.Unstake(fortest.Alice, big.NewInt(40))
	require.Nil(t, err)

	assert.ErrorIs(t, f.svc.Cancel(fortest.Bob, tokenID), xerrors.ErrPermissionDenied)
	require.Nil(t, f.svc.Cancel(fortest.Alice, tokenID))
	assert.Equal(t, big.NewInt(100), f.balance(t, fortest.Alice))

	unstaking, err := f.svc.UnstakingTotal()
	require.Nil(t, err)
	assert.Equal(t, 0, unstaking.Sign())
}

func TestTransferFromSpendsAllowance(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	err := f.svc.TransferFrom(fortest.Bob, fortest.Alice, fortest.Carol, big.NewInt(30))
	assert.ErrorIs(t, err, xerrors.ErrInsufficientAllowance)

	require.Nil(t, f.svc.Approve(fortest.Alice, fortest.Bob, big.NewInt(30)))
	require.Nil(t, f.svc.TransferFrom(fortest.Bob, fortest.Alice, fortest.Carol, big.NewInt(30)))
	assert.Equal(t, big.NewInt(30), f.balance(t, fortest.Carol))

	allowance, err := f.svc.Allowance(fortest.Alice, fortest.Bob)
	require.Nil(t, err)
	assert.Equal(t, 0, allowance.Sign())
}

func TestDelegation(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	// undelegated shares carry no voting power
	votes, err := f.svc.Votes(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, 0, votes.Sign())

	f.env.NextBlock()
	require.Nil(t, f.svc.Delegate(fortest.Alice, fortest.Alice))
	shares, err := f.svc.SharesOf(fortest.Alice)
	require.Nil(t, err)
	votes, err = f.svc.Votes(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, shares, votes)

	// a transfer to an undelegated account drops the power
	f.env.NextBlock()
	require.Nil(t, f.svc.Transfer(fortest.Alice, fortest.Bob, big.NewInt(25)))
	votes, err = f.svc.Votes(fortest.Alice)
	require.Nil(t, err)
	shares, err = f.svc.SharesOf(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, shares, votes)

	// redelegating moves the whole current power
	f.env.NextBlock()
	require.Nil(t, f.svc.Delegate(fortest.Alice, fortest.Carol))
	votes, err = f.svc.Votes(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, 0, votes.Sign())
	votes, err = f.svc.Votes(fortest.Carol)
	require.Nil(t, err)
	assert.Equal(t, shares, votes)
}

func TestPastVotes(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	require.Nil(t, f.svc.Delegate(fortest.Alice, fortest.Alice))

	delegatedAt := f.env.BlockNumber()
	power, err := f.svc.Votes(fortest.Alice)
	require.Nil(t, err)

	f.env.NextBlock()
	require.Nil(t, f.svc.Transfer(fortest.Alice, fortest.Bob, big.NewInt(100)))

	v, err := f.svc.PastVotes(fortest.Alice, delegatedAt)
	require.Nil(t, err)
	assert.Equal(t, power, v)

	cur, err := f.svc.Votes(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, 0, cur.Sign())

	_, err = f.svc.PastVotes(fortest.Alice, f.env.BlockNumber())
	assert.ErrorIs(t, err, xerrors.ErrBlockNotYetMined)

	total, err := f.svc.PastTotalShares(delegatedAt)
	require.Nil(t, err)
	assert.Equal(t, power, total)
}

func TestSetFee(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.SetFee(fortest.Alice, fortest.FeeTo, 10, 100), xerrors.ErrPermissionDenied)
	assert.ErrorIs(t, f.svc.SetFee(fortest.Owner, fortest.FeeTo, 40, 100), xerrors.ErrExcessiveFee)
	assert.ErrorIs(t, f.svc.SetFee(fortest.Owner, fortest.FeeTo, uint64(1)<<62, 1), xerrors.ErrExcessiveFee)
	assert.ErrorIs(t, f.svc.SetFee(fortest.Owner, common.Address{}, 10, 100), xerrors.ErrUndefinedFeeTo)
	require.Nil(t, f.svc.SetFee(fortest.Owner, fortest.FeeTo, 25, 100))

	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	f.vault.AddReward(big.NewInt(40))
	require.Nil(t, f.svc.Sweep())

	// 25% of the reward is skimmed before distribution
	assert.Equal(t, big.NewInt(130), f.balance(t, fortest.Alice))
}

func TestFeeChangeSweepsUnderOldRate(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	// rewards accrued before the fee was configured are not skimmed
	f.vault.AddReward(big.NewInt(40))
	require.Nil(t, f.svc.SetFee(fortest.Owner, fortest.FeeTo, 25, 100))
	assert.Equal(t, big.NewInt(140), f.balance(t, fortest.Alice))
}

func TestRewardScenarioOneToTwo(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, fortest.Ether(1)))
	require.Nil(t, f.svc.Stake(fortest.Bob, fortest.Ether(2)))

	f.vault.AddReward(fortest.Ether(3))
	require.Nil(t, f.svc.Sweep())

	supply, err := f.svc.TotalSupply()
	require.Nil(t, err)
	assert.Equal(t, fortest.Ether(6), supply)
	assert.Equal(t, fortest.Ether(2), f.balance(t, fortest.Alice))
	assert.Equal(t, fortest.Ether(4), f.balance(t, fortest.Bob))
}

func TestTenPercentFeeScenario(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.SetFee(fortest.Owner, fortest.FeeTo, 10, 100))
	require.Nil(t, f.svc.Stake(fortest.Alice, fortest.Ether(1)))

	f.vault.AddReward(fortest.Ether(1))
	require.Nil(t, f.svc.Sweep())

	// 10% of the 1 KLAY reward is skimmed; the fee mint's floor rounding
	// shaves one wei off the recipient's viewable balance
	want := new(big.Int).Add(fortest.Ether(1), big.NewInt(900000000000000000))
	assert.Equal(t, want, f.balance(t, fortest.Alice))
	feeWant := new(big.Int).Sub(big.NewInt(100000000000000000), big.NewInt(1))
	assert.Equal(t, feeWant, f.balance(t, fortest.FeeTo))
}

func TestMintBurnNotAllowed(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Mint(fortest.Alice, big.NewInt(1)), xerrors.ErrNotAllowed)
	assert.ErrorIs(t, f.svc.Burn(fortest.Alice, big.NewInt(1)), xerrors.ErrNotAllowed)
}

func TestStatsDebounce(t *testing.T) {
	f := newFixture(t)

	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	assert.Len(t, f.stats, 1)

	f.env.AdvanceTime(DefaultStatsInterval)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	assert.Len(t, f.stats, 2)
	assert.Equal(t, big.NewInt(300), f.stats[1])
}

func TestSetStatsDebounceInterval(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.SetStatsDebounceInterval(fortest.Alice, 10), xerrors.ErrPermissionDenied)
	require.Nil(t, f.svc.SetStatsDebounceInterval(fortest.Owner, 10))

	// the interval change already emitted; the first stake is debounced
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	assert.Len(t, f.stats, 1)

	f.env.AdvanceTime(10)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))
	assert.Len(t, f.stats, 2)
}

func TestFailedOperationRollsBack(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, big.NewInt(100)))

	_, err := f.svc.Unstake(fortest.Alice, big.NewInt(200))
	assert.ErrorIs(t, err, xerrors.ErrInsufficientBalance)

	assert.Equal(t, big.NewInt(100), f.balance(t, fortest.Alice))
	unstaking, err := f.svc.UnstakingTotal()
	require.Nil(t, err)
	assert.Equal(t, 0, unstaking.Sign())
	_, err = f.svc.ClaimCheckStatus(0)
	assert.ErrorIs(t, err, xerrors.ErrUnknownClaimCheck)
	assert.Equal(t, 0, f.vault.PendingCount())
}

// failingNFT simulates a token registry that rejects new claim checks.
type failingNFT struct {
	*nft.Registry
	issueErr error
}

func (n *failingNFT) OnIssue(tokenID uint64, to common.Address) error {
	if n.issueErr != nil {
		return n.issueErr
	}
	return n.Registry.OnIssue(tokenID, to)
}

func TestAbortedUnstakeReleasesWithdrawal(t *testing.T) {
	db, err := lvldb.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	env := fortest.NewEnv()
	pool := vault.NewMemory(0, env.Now)
	broken := &failingNFT{Registry: nft.NewRegistry()}
	svc := New(state.New(db), pool, broken, env, Options{Owner: fortest.Owner})

	require.Nil(t, svc.Stake(fortest.Alice, big.NewInt(100)))
	broken.issueErr = errors.New("token registry unavailable")

	_, err = svc.Unstake(fortest.Alice, big.NewInt(40))
	require.NotNil(t, err)

	// the ledger rolled back and the vault kept nothing pending
	b, err := svc.BalanceOf(fortest.Alice)
	require.Nil(t, err)
	assert.Equal(t, big.NewInt(100), b)
	assert.Equal(t, 0, pool.PendingCount())
}

func TestDescribeClaimCheck(t *testing.T) {
	f := newFixture(t)
	require.Nil(t, f.svc.Stake(fortest.Alice, fortest.Ether(2000)))

	amount := new(big.Int).Add(fortest.Ether(1234), big.NewInt(123))
	tokenID, err := f.svc.Unstake(fortest.Alice, amount)
	require.Nil(t, err)

	desc, err := f.svc.DescribeClaimCheck(tokenID)
	require.Nil(t, err)
	assert.Contains(t, desc, "1,234.000000000000000123 KLAY")
	assert.Contains(t, desc, "Not claimable yet")

	// the claimable amount is fixed at issuance; sweeps do not move it
	f.vault.AddReward(fortest.Ether(50))
	require.Nil(t, f.svc.Sweep())
	desc, err = f.svc.DescribeClaimCheck(tokenID)
	require.Nil(t, err)
	assert.Contains(t, desc, "1,234.000000000000000123 KLAY")
}
