// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package staking

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Swapscanner/klaystaking-core/staking/claimcheck"
)

// All reads report the state as of the last sweep; pending rewards are not
// included until an operation settles them.

// BalanceOf returns the staked balance of an account.
func (s *Service) BalanceOf(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.BalanceOf(addr)
}

// SharesOf returns the share balance of an account.
func (s *Service) SharesOf(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.SharesOf(addr)
}

// TotalSupply returns the accounted staked value.
func (s *Service) TotalSupply() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TotalSupply()
}

// TotalShares returns the total share supply.
func (s *Service) TotalShares() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.TotalShares()
}

// UnstakingTotal returns the principal locked in unresolved claim checks.
func (s *Service) UnstakingTotal() (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.UnstakingTotal()
}

// Allowance returns the remaining allowance of spender over owner.
func (s *Service) Allowance(owner, spender common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Allowance(owner, spender)
}

// FeeConfig returns the fee recipient and rate.
func (s *Service) FeeConfig() (feeTo common.Address, numerator, denominator uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feeTo, err = s.ledger.FeeTo(); err != nil {
		return common.Address{}, 0, 0, err
	}
	numerator, denominator, err = s.ledger.FeeRate()
	return feeTo, numerator, denominator, err
}

// Owner returns the administrative account.
func (s *Service) Owner() common.Address { return s.owner }

// Delegates returns the delegatee of an account, or the zero address if
// the account has not delegated.
func (s *Service) Delegates(addr common.Address) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAddress(delegateeKey(addr))
}

// Votes returns the current voting power of a delegatee, in shares.
func (s *Service) Votes(addr common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes.Votes(addr)
}

// PastVotes returns the voting power of a delegatee at the end of a past
// block.
func (s *Service) PastVotes(addr common.Address, block uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes.PastVotes(addr, block, s.env.BlockNumber())
}

// PastTotalShares returns the total share supply at the end of a past
// block.
func (s *Service) PastTotalShares(block uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes.PastTotalShares(block, s.env.BlockNumber())
}

// NumCheckpoints returns the number of voting power checkpoints of a
// delegatee.
func (s *Service) NumCheckpoints(addr common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votes.NumCheckpoints(addr)
}

// ClaimCheck returns the stored record of a claim check.
func (s *Service) ClaimCheck(tokenID uint64) (*claimcheck.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.Ticket(tokenID)
}

// ClaimCheckStatus returns the current lifecycle status of a claim check.
func (s *Service) ClaimCheckStatus(tokenID uint64) (claimcheck.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.StatusOf(tokenID, s.env.Now())
}

// DescribeClaimCheck renders the user-facing description of a claim check.
func (s *Service) DescribeClaimCheck(tokenID uint64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claims.Describe(tokenID, s.env.Now())
}
