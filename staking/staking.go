// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package staking assembles the proxy-staked KLAY service.
//
// Service is the single entry point: it serializes all operations, sweeps
// accrued rewards before anything balance-sensitive, routes share movements
// into the voting power checkpoints and commits each operation atomically
// against the underlying state.
package staking

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Swapscanner/klaystaking-core/log"
	"github.com/Swapscanner/klaystaking-core/metrics"
	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/staking/checkpoints"
	"github.com/Swapscanner/klaystaking-core/staking/claimcheck"
	"github.com/Swapscanner/klaystaking-core/staking/ledger"
	"github.com/Swapscanner/klaystaking-core/staking/sweeper"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// DefaultStatsInterval is the minimum time between stats emissions.
const DefaultStatsInterval = 3600

// Env provides the chain clock operations are stamped with.
type Env interface {
	BlockNumber() uint64
	Now() uint64
}

// Vault is the consensus-layer staking pool the service deposits into and
// withdraws from.
type Vault interface {
	Deposit(amount *big.Int) error
	PoolValue() (*big.Int, error)
	RequestWithdrawal(amount *big.Int) (requestID, withdrawableFrom uint64, err error)
	CancelWithdrawal(requestID uint64) error
	Withdraw(requestID uint64, to common.Address) error
}

// NFT is the claim check token registry.
type NFT = claimcheck.NFT

// StatsFunc receives debounced supply stats after committed operations.
type StatsFunc func(totalShares, totalSupply *big.Int)

// Options configures a Service.
type Options struct {
	// Owner may configure fees and the stats interval.
	Owner common.Address
	// ExpiryWindow overrides the claim window; zero keeps the default.
	ExpiryWindow uint64
	// OnStats, if set, is called with debounced supply stats.
	OnStats StatsFunc
}

var (
	slotStatsInterval = common.BytesToHash([]byte("stats-interval"))
	slotStatsLastEmit = common.BytesToHash([]byte("stats-last-emit"))
)

func delegateeKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("delegatee"), addr.Bytes())
}

// Service is the proxy-staked KLAY facade.
type Service struct {
	mu      sync.Mutex
	st      *state.State
	ledger  *ledger.Ledger
	votes   *checkpoints.Index
	claims  *claimcheck.Lifecycle
	sweeper *sweeper.Sweeper
	vault   Vault
	env     Env
	owner   common.Address
	onStats StatsFunc
	logger  log.Logger

	gaugeStaked    metrics.GaugeMeter
	gaugeUnstaking metrics.GaugeMeter
	gaugeFeeRate   metrics.GaugeVecMeter
	counterSweeps  metrics.CountMeter
}

// New assembles a service over the given state. A nil env falls back to
// wall-clock time.
func New(st *state.State, vault Vault, nft NFT, env Env, opts Options) *Service {
	if env == nil {
		env = wallClock{}
	}
	s := &Service{
		st:      st,
		vault:   vault,
		env:     env,
		owner:   opts.Owner,
		onStats: opts.OnStats,
		logger:  log.WithContext("pkg", "staking"),

		gaugeStaked:    metrics.Gauge("staked_klay"),
		gaugeUnstaking: metrics.Gauge("unstaking_klay"),
		gaugeFeeRate:   metrics.GaugeVec("fee_rate", []string{"part"}),
		counterSweeps:  metrics.Counter("sweeps_total"),
	}
	s.ledger = ledger.New(st)
	s.votes = checkpoints.New(st)
	s.claims = claimcheck.New(st, s.ledger, vault, nft, &powerMover{s}, opts.ExpiryWindow)
	s.sweeper = sweeper.New(s.ledger, vault, s.claims)
	return s
}

// wallClock derives both clocks from real time; without a chain there is
// one pseudo block per second.
type wallClock struct{}

func (wallClock) BlockNumber() uint64 { return uint64(time.Now().Unix()) }
func (wallClock) Now() uint64         { return uint64(time.Now().Unix()) }

// powerMover lets the claim check lifecycle report share movements without
// exposing an unlocked method on Service.
type powerMover struct{ s *Service }

func (m *powerMover) MovePower(from, to common.Address, shares *big.Int) error {
	return m.s.movePower(from, to, shares)
}

// Stake sweeps and stakes amount for the caller. A zero amount is a plain
// sweep.
func (s *Service) Stake(caller common.Address, amount *big.Int) error {
	return s.StakeFor(caller, caller, amount)
}

// StakeFor sweeps and stakes the caller's amount for a beneficiary.
func (s *Service) StakeFor(caller, beneficiary common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return xerrors.ErrAmountTooSmall
	}
	return s.exec(true, func() error {
		if amount.Sign() == 0 {
			return nil
		}
		minted, err := s.ledger.MintSharesForAmount(beneficiary, amount)
		if err != nil {
			return err
		}
		if err := s.movePower(common.Address{}, beneficiary, minted); err != nil {
			return err
		}
		return s.vault.Deposit(amount)
	})
}

// Unstake burns amount from the caller and issues a claim check for it.
// Returns the claim check token id.
func (s *Service) Unstake(caller common.Address, amount *big.Int) (uint64, error) {
	var tokenID uint64
	err := s.exec(true, func() (err error) {
		tokenID, err = s.claims.Issue(caller, amount)
		return err
	})
	return tokenID, err
}

// UnstakeAll unstakes the caller's entire balance, as seen after the sweep.
func (s *Service) UnstakeAll(caller common.Address) (uint64, error) {
	var tokenID uint64
	err := s.exec(true, func() error {
		balance, err := s.ledger.BalanceOf(caller)
		if err != nil {
			return err
		}
		tokenID, err = s.claims.Issue(caller, balance)
		return err
	})
	return tokenID, err
}

// Claim settles a matured claim check; see claimcheck.Lifecycle.Claim.
func (s *Service) Claim(caller common.Address, tokenID uint64) error {
	return s.exec(true, func() error {
		return s.claims.Claim(caller, tokenID, s.env.Now())
	})
}

// Cancel aborts an unresolved claim check of the caller and re-stakes it.
func (s *Service) Cancel(caller common.Address, tokenID uint64) error {
	return s.exec(true, func() error {
		return s.claims.Cancel(caller, tokenID, s.env.Now())
	})
}

// Sweep settles accrued rewards without any further operation.
func (s *Service) Sweep() error {
	return s.exec(true, func() error { return nil })
}

// Transfer moves amount of the caller's balance to another account.
func (s *Service) Transfer(caller, to common.Address, amount *big.Int) error {
	return s.exec(true, func() error {
		shares, err := s.ledger.TransferAmount(caller, to, amount)
		if err != nil {
			return err
		}
		return s.movePower(caller, to, shares)
	})
}

// TransferFrom moves amount between accounts, spending the caller's
// allowance.
func (s *Service) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	return s.exec(true, func() error {
		if err := s.ledger.SpendAllowance(from, caller, amount); err != nil {
			return err
		}
		shares, err := s.ledger.TransferAmount(from, to, amount)
		if err != nil {
			return err
		}
		return s.movePower(from, to, shares)
	})
}

// TransferShares moves an exact share quantity to another account.
func (s *Service) TransferShares(caller, to common.Address, shares *big.Int) error {
	return s.exec(true, func() error {
		if err := s.ledger.TransferShares(caller, to, shares); err != nil {
			return err
		}
		return s.movePower(caller, to, shares)
	})
}

// Approve sets the allowance of spender over the caller's balance.
func (s *Service) Approve(caller, spender common.Address, amount *big.Int) error {
	return s.exec(false, func() error {
		return s.ledger.Approve(caller, spender, amount)
	})
}

// Delegate assigns the caller's voting power to a delegatee. The zero
// address undelegates.
func (s *Service) Delegate(caller, delegatee common.Address) error {
	return s.exec(false, func() error {
		old, err := s.st.GetAddress(delegateeKey(caller))
		if err != nil {
			return err
		}
		s.st.SetAddress(delegateeKey(caller), delegatee)
		shares, err := s.ledger.SharesOf(caller)
		if err != nil {
			return err
		}
		return s.votes.MoveVotingPower(old, delegatee, shares, s.env.BlockNumber())
	})
}

// SetFee configures the reward fee. Owner only. Rewards accrued so far are
// swept under the old rate first.
func (s *Service) SetFee(caller, feeTo common.Address, numerator, denominator uint64) error {
	if caller != s.owner {
		return xerrors.ErrPermissionDenied
	}
	return s.exec(true, func() error {
		return s.ledger.SetFee(feeTo, numerator, denominator)
	})
}

// SetStatsDebounceInterval sets the minimum seconds between stats
// emissions. Owner only; zero restores the default.
func (s *Service) SetStatsDebounceInterval(caller common.Address, seconds uint64) error {
	if caller != s.owner {
		return xerrors.ErrPermissionDenied
	}
	return s.exec(false, func() error {
		s.st.SetUint64(slotStatsInterval, seconds)
		return nil
	})
}

// Mint is not supported: supply only grows through staking and sweeps.
func (s *Service) Mint(common.Address, *big.Int) error { return xerrors.ErrNotAllowed }

// Burn is not supported: supply only shrinks through unstaking.
func (s *Service) Burn(common.Address, *big.Int) error { return xerrors.ErrNotAllowed }

// exec runs one operation end to end: optional sweep, the mutation itself,
// debounced stats bookkeeping, then a single commit. Any error rolls the
// whole journal back. The stats listener runs outside the lock so it may
// read back from the service.
func (s *Service) exec(sweepFirst bool, fn func() error) error {
	emit, shares, supply, err := s.execLocked(sweepFirst, fn)
	if err != nil {
		return err
	}
	if emit && s.onStats != nil {
		s.onStats(shares, supply)
	}
	return nil
}

func (s *Service) execLocked(sweepFirst bool, fn func() error) (emit bool, shares, supply *big.Int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if err != nil {
			s.st.Reset()
		}
	}()

	if sweepFirst {
		if err = s.sweep(); err != nil {
			return false, nil, nil, err
		}
	}
	if err = fn(); err != nil {
		return false, nil, nil, err
	}

	if emit, shares, supply, err = s.prepareStats(); err != nil {
		return false, nil, nil, err
	}
	if err = s.st.Commit(); err != nil {
		return false, nil, nil, err
	}
	s.updateGauges(supply)
	return emit, shares, supply, nil
}

func (s *Service) sweep() error {
	res, err := s.sweeper.Sweep()
	if err != nil {
		return err
	}
	if res.FeeShares.Sign() > 0 {
		if err := s.movePower(common.Address{}, res.FeeTo, res.FeeShares); err != nil {
			return err
		}
	}
	if res.Delta.Sign() > 0 {
		s.counterSweeps.Add(1)
	}
	return nil
}

// movePower propagates a share movement into the checkpoint index, mapped
// through each side's delegatee, and re-checkpoints the total.
func (s *Service) movePower(from, to common.Address, shares *big.Int) error {
	block := s.env.BlockNumber()
	fromD, err := s.delegateeOf(from)
	if err != nil {
		return err
	}
	toD, err := s.delegateeOf(to)
	if err != nil {
		return err
	}
	if err := s.votes.MoveVotingPower(fromD, toD, shares, block); err != nil {
		return err
	}
	totalShares, err := s.ledger.TotalShares()
	if err != nil {
		return err
	}
	return s.votes.RecordTotal(block, totalShares)
}

func (s *Service) delegateeOf(addr common.Address) (common.Address, error) {
	if addr == (common.Address{}) {
		return common.Address{}, nil
	}
	return s.st.GetAddress(delegateeKey(addr))
}

func (s *Service) prepareStats() (emit bool, shares, supply *big.Int, err error) {
	if shares, err = s.ledger.TotalShares(); err != nil {
		return false, nil, nil, err
	}
	if supply, err = s.ledger.TotalSupply(); err != nil {
		return false, nil, nil, err
	}

	interval, err := s.st.GetUint64(slotStatsInterval)
	if err != nil {
		return false, nil, nil, err
	}
	if interval == 0 {
		interval = DefaultStatsInterval
	}
	last, err := s.st.GetUint64(slotStatsLastEmit)
	if err != nil {
		return false, nil, nil, err
	}
	now := s.env.Now()
	if last == 0 || now >= last+interval {
		s.st.SetUint64(slotStatsLastEmit, now)
		return true, shares, supply, nil
	}
	return false, shares, supply, nil
}

var klay = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func (s *Service) updateGauges(supply *big.Int) {
	s.gaugeStaked.Set(new(big.Int).Div(supply, klay).Int64())
	if unstaking, err := s.claims.UnstakingTotal(); err == nil {
		s.gaugeUnstaking.Set(new(big.Int).Div(unstaking, klay).Int64())
	}
	if num, den, err := s.ledger.FeeRate(); err == nil {
		s.gaugeFeeRate.SetWithLabel(int64(num), map[string]string{"part": "numerator"})
		s.gaugeFeeRate.SetWithLabel(int64(den), map[string]string{"part": "denominator"})
	}
}
