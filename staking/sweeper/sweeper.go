// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package sweeper folds consensus-layer staking rewards into the ledger.
//
// Rewards accrue in the pool out of band. A sweep compares the observed
// pool value against the accounted value (totalSupply plus the pending
// unstaking principal) and settles the surplus: the part earned by
// unstaking principal goes to the fee recipient, the rest is distributed to
// stakers as a rebase after skimming the configured fee.
package sweeper

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/log"
	"github.com/Swapscanner/klaystaking-core/staking/ledger"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// PoolReader reports the observable value held by the staking pool.
type PoolReader interface {
	PoolValue() (*big.Int, error)
}

// UnstakingReader reports the principal locked in unresolved claim checks.
type UnstakingReader interface {
	UnstakingTotal() (*big.Int, error)
}

// Result describes what a sweep settled.
type Result struct {
	// Delta is the surplus found; zero means the sweep was a no-op.
	Delta *big.Int
	// Distributed is the part rebased into totalSupply for stakers.
	Distributed *big.Int
	// Fee is the amount minted to FeeTo (fee skim plus the unstaking
	// principal's share of the reward).
	Fee *big.Int
	// FeeShares is the share quantity minted for Fee, for checkpointing.
	FeeShares *big.Int
	// FeeTo is the fee recipient the shares were minted to.
	FeeTo common.Address
}

// Sweeper computes and settles reward sweeps.
type Sweeper struct {
	ledger    *ledger.Ledger
	pool      PoolReader
	unstaking UnstakingReader
	logger    log.Logger
}

// New creates a sweeper.
func New(l *ledger.Ledger, pool PoolReader, unstaking UnstakingReader) *Sweeper {
	return &Sweeper{
		ledger:    l,
		pool:      pool,
		unstaking: unstaking,
		logger:    log.WithContext("pkg", "sweeper"),
	}
}

// Sweep settles any pool surplus. It never fails on ledger-level rounding:
// a fee too small to mint shares for is folded into the distribution
// instead.
func (s *Sweeper) Sweep() (*Result, error) {
	res := &Result{
		Delta:       new(big.Int),
		Distributed: new(big.Int),
		Fee:         new(big.Int),
		FeeShares:   new(big.Int),
	}

	observed, err := s.pool.PoolValue()
	if err != nil {
		return nil, errors.Wrap(err, "pool value")
	}
	supply, err := s.ledger.TotalSupply()
	if err != nil {
		return nil, err
	}
	unstaking, err := s.unstaking.UnstakingTotal()
	if err != nil {
		return nil, err
	}

	accounted := new(big.Int).Add(supply, unstaking)
	delta := new(big.Int).Sub(observed, accounted)
	if delta.Sign() <= 0 {
		return res, nil
	}
	res.Delta = delta

	feeTo, err := s.ledger.FeeTo()
	if err != nil {
		return nil, err
	}

	if accounted.Sign() == 0 {
		// nothing to attribute the surplus to; it belongs to the
		// operator if one is configured, otherwise it stays unaccounted
		if feeTo == (common.Address{}) {
			res.Delta = new(big.Int)
			return res, nil
		}
		return res, s.mintFee(res, feeTo, delta)
	}

	// the unstaking principal's slice of the reward is not owed to share
	// holders; it goes to the fee recipient in full
	unstakingReward := new(big.Int).Div(new(big.Int).Mul(delta, unstaking), accounted)
	stakedReward := new(big.Int).Sub(delta, unstakingReward)

	fee := new(big.Int)
	if feeTo != (common.Address{}) {
		numerator, denominator, err := s.ledger.FeeRate()
		if err != nil {
			return nil, err
		}
		if numerator > 0 {
			fee.Div(
				new(big.Int).Mul(stakedReward, new(big.Int).SetUint64(numerator)),
				new(big.Int).SetUint64(denominator),
			)
		}
		fee.Add(fee, unstakingReward)
	}

	distributed := new(big.Int).Sub(delta, fee)
	if err := s.ledger.IncreaseTotalSupply(distributed); err != nil {
		return nil, err
	}
	res.Distributed = distributed

	if fee.Sign() > 0 {
		if err := s.mintFee(res, feeTo, fee); err != nil {
			if !errors.Is(err, xerrors.ErrAmountTooSmall) {
				return nil, err
			}
			// too small to mint shares for; hand it to the stakers
			if err := s.ledger.IncreaseTotalSupply(fee); err != nil {
				return nil, err
			}
			res.Distributed = new(big.Int).Add(distributed, fee)
			res.Fee = new(big.Int)
		}
	}

	s.logger.Debug("swept rewards",
		"delta", res.Delta, "distributed", res.Distributed, "fee", res.Fee)
	return res, nil
}

func (s *Sweeper) mintFee(res *Result, feeTo common.Address, fee *big.Int) error {
	shares, err := s.ledger.MintSharesForAmount(feeTo, fee)
	if err != nil {
		return err
	}
	res.Fee = fee
	res.FeeShares = shares
	res.FeeTo = feeTo
	return nil
}
