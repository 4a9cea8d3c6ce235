// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package ledger

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// FeeTo returns the fee recipient. The zero address means fees are disabled.
func (l *Ledger) FeeTo() (common.Address, error) {
	return l.st.GetAddress(slotFeeTo)
}

// FeeRate returns the configured fee fraction numerator/denominator.
func (l *Ledger) FeeRate() (numerator, denominator uint64, err error) {
	if numerator, err = l.st.GetUint64(slotFeeNumerator); err != nil {
		return 0, 0, err
	}
	if denominator, err = l.st.GetUint64(slotFeeDenominator); err != nil {
		return 0, 0, err
	}
	return numerator, denominator, nil
}

// SetFee configures the reward fee. The rate must not exceed 1/feeCapDenominator
// of swept rewards, and a non-zero rate requires a recipient.
func (l *Ledger) SetFee(feeTo common.Address, numerator, denominator uint64) error {
	// the multiplication must not wrap; a huge numerator is excessive by
	// definition
	if denominator == 0 || numerator > math.MaxUint64/feeCapDenominator ||
		numerator*feeCapDenominator > denominator {
		return xerrors.ErrExcessiveFee
	}
	if numerator > 0 && feeTo == (common.Address{}) {
		return xerrors.ErrUndefinedFeeTo
	}
	l.st.SetAddress(slotFeeTo, feeTo)
	l.st.SetUint64(slotFeeNumerator, numerator)
	l.st.SetUint64(slotFeeDenominator, denominator)
	return nil
}

// Allowance returns the remaining amount spender may transfer out of owner.
func (l *Ledger) Allowance(owner, spender common.Address) (*big.Int, error) {
	return l.st.GetBig(allowanceKey(owner, spender))
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return xerrors.ErrTransferAddressZero
	}
	return l.setAllowance(owner, spender, amount)
}

// SpendAllowance deducts amount from the allowance of spender over owner.
func (l *Ledger) SpendAllowance(owner, spender common.Address, amount *big.Int) error {
	allowance, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return xerrors.ErrInsufficientAllowance
	}
	return l.setAllowance(owner, spender, new(big.Int).Sub(allowance, amount))
}

// setAllowance stores an allowance, dropping the slot when it hits zero.
func (l *Ledger) setAllowance(owner, spender common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		l.st.Delete(allowanceKey(owner, spender))
		return nil
	}
	return l.st.SetBig(allowanceKey(owner, spender), amount)
}
