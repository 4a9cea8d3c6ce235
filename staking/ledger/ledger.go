// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package ledger implements the fixed-point share ledger backing staked KLAY
// balances.
//
// Accounts hold shares; the externally meaningful balance of an account is
// derived from the current share price totalSupply/totalShares. Increasing
// totalSupply without minting shares (a rebase) raises every holder's
// balance pro rata. Share quantities are scaled by PrecisionMultiplier
// relative to the pool's native unit.
package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// PrecisionMultiplier scales shares relative to the pool's native unit.
// The first mint into an empty ledger receives amount*PrecisionMultiplier
// shares; the headroom keeps conversions exact under heavy rebasing.
var PrecisionMultiplier = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// feeCapDenominator bounds the fee rate: feeNumerator/feeDenominator <= 1/4.
const feeCapDenominator = 4

var (
	slotTotalShares    = common.BytesToHash([]byte("total-shares"))
	slotTotalSupply    = common.BytesToHash([]byte("total-supply"))
	slotFeeTo          = common.BytesToHash([]byte("fee-to"))
	slotFeeNumerator   = common.BytesToHash([]byte("fee-numerator"))
	slotFeeDenominator = common.BytesToHash([]byte("fee-denominator"))
)

func accountKey(addr common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("shares"), addr.Bytes())
}

func allowanceKey(owner, spender common.Address) common.Hash {
	return crypto.Keccak256Hash([]byte("allowance"), owner.Bytes(), spender.Bytes())
}

// Ledger provides share<->amount conversion and the primitive mutations.
// All mutations keep sum(account shares) == totalShares exactly.
type Ledger struct {
	st *state.State
}

// New creates a ledger over the given state.
func New(st *state.State) *Ledger {
	return &Ledger{st: st}
}

// TotalShares returns the sum of all account shares.
func (l *Ledger) TotalShares() (*big.Int, error) {
	return l.st.GetBig(slotTotalShares)
}

// TotalSupply returns the accounted pool value backing all shares.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.st.GetBig(slotTotalSupply)
}

// SharesOf returns the share balance of an account.
func (l *Ledger) SharesOf(addr common.Address) (*big.Int, error) {
	return l.st.GetBig(accountKey(addr))
}

// BalanceOf returns the derived balance of an account, as of the last sweep.
func (l *Ledger) BalanceOf(addr common.Address) (*big.Int, error) {
	shares, err := l.SharesOf(addr)
	if err != nil {
		return nil, err
	}
	return l.SharesToAmount(shares)
}

// SharesToAmount converts shares to amount, rounding down.
func (l *Ledger) SharesToAmount(shares *big.Int) (*big.Int, error) {
	totalShares, err := l.TotalShares()
	if err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	return floorMulDiv(shares, totalSupply, totalShares), nil
}

// sharesForMintingAmount computes the shares to mint so that the new holder
// owns exactly amount of the grown pool. Rounds down: minting never
// over-credits.
func (l *Ledger) sharesForMintingAmount(amount *big.Int) (*big.Int, error) {
	totalShares, err := l.TotalShares()
	if err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 {
		return new(big.Int).Mul(amount, PrecisionMultiplier), nil
	}
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	shares := floorMulDiv(amount, totalShares, totalSupply)
	if shares.Sign() == 0 && amount.Sign() > 0 {
		return nil, xerrors.ErrAmountTooSmall
	}
	return shares, nil
}

// sharesForBurningAmount computes the shares to burn to remove exactly
// amount of value. Rounds up: burning never leaves residual unaccounted
// value.
func (l *Ledger) sharesForBurningAmount(amount *big.Int) (*big.Int, error) {
	totalShares, err := l.TotalShares()
	if err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 {
		return nil, xerrors.ErrInsufficientBalance
	}
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	shares := ceilMulDiv(amount, totalShares, totalSupply)
	if shares.Sign() == 0 && amount.Sign() > 0 {
		return nil, xerrors.ErrAmountTooSmall
	}
	return shares, nil
}

// MintSharesForAmount credits addr with shares worth exactly amount and
// grows the pool accordingly. Returns the minted shares. A zero amount is a
// no-op.
func (l *Ledger) MintSharesForAmount(addr common.Address, amount *big.Int) (*big.Int, error) {
	if addr == (common.Address{}) {
		return nil, xerrors.ErrTransferAddressZero
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	shares, err := l.sharesForMintingAmount(amount)
	if err != nil {
		return nil, err
	}

	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	if err := l.st.SetBig(slotTotalSupply, new(big.Int).Add(totalSupply, amount)); err != nil {
		return nil, err
	}
	if err := l.addShares(addr, shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// BurnAmount removes exactly amount of value from addr, burning the
// corresponding shares (rounded up). Returns the burned shares.
func (l *Ledger) BurnAmount(addr common.Address, amount *big.Int) (*big.Int, error) {
	if addr == (common.Address{}) {
		return nil, xerrors.ErrTransferAddressZero
	}
	if amount.Sign() == 0 {
		return nil, xerrors.ErrAmountTooSmall
	}
	shares, err := l.sharesForBurningAmount(amount)
	if err != nil {
		return nil, err
	}

	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	if totalSupply.Cmp(amount) < 0 {
		return nil, xerrors.ErrInsufficientBalance
	}
	if err := l.subShares(addr, shares); err != nil {
		return nil, err
	}
	return shares, l.st.SetBig(slotTotalSupply, new(big.Int).Sub(totalSupply, amount))
}

// BurnShares burns an exact share quantity from addr and removes the
// corresponding amount (rounded down) from the pool. Returns the amount.
func (l *Ledger) BurnShares(addr common.Address, shares *big.Int) (*big.Int, error) {
	if addr == (common.Address{}) {
		return nil, xerrors.ErrTransferAddressZero
	}
	amount, err := l.SharesToAmount(shares)
	if err != nil {
		return nil, err
	}
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return nil, err
	}
	if err := l.subShares(addr, shares); err != nil {
		return nil, err
	}
	return amount, l.st.SetBig(slotTotalSupply, new(big.Int).Sub(totalSupply, amount))
}

// TransferAmount moves amount of derived balance from one account to
// another by moving shares. Transferring the entire balance moves all
// shares, leaving no dust. Returns the moved shares.
func (l *Ledger) TransferAmount(from, to common.Address, amount *big.Int) (*big.Int, error) {
	if from == (common.Address{}) || to == (common.Address{}) {
		return nil, xerrors.ErrTransferAddressZero
	}
	balance, err := l.BalanceOf(from)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(balance) > 0 {
		return nil, xerrors.ErrInsufficientBalance
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}

	var shares *big.Int
	if amount.Cmp(balance) == 0 {
		if shares, err = l.SharesOf(from); err != nil {
			return nil, err
		}
	} else if shares, err = l.sharesForBurningAmount(amount); err != nil {
		return nil, err
	}
	return shares, l.TransferShares(from, to, shares)
}

// TransferShares atomically moves a share quantity between accounts.
func (l *Ledger) TransferShares(from, to common.Address, shares *big.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return xerrors.ErrTransferAddressZero
	}
	if shares.Sign() == 0 {
		return nil
	}
	fromShares, err := l.SharesOf(from)
	if err != nil {
		return err
	}
	if fromShares.Cmp(shares) < 0 {
		return xerrors.ErrInsufficientBalance
	}
	toShares, err := l.SharesOf(to)
	if err != nil {
		return err
	}
	if err := l.setShares(from, new(big.Int).Sub(fromShares, shares)); err != nil {
		return err
	}
	return l.st.SetBig(accountKey(to), new(big.Int).Add(toShares, shares))
}

// IncreaseTotalSupply grows the pool value without minting shares: the
// rebase primitive used by the reward sweeper.
func (l *Ledger) IncreaseTotalSupply(delta *big.Int) error {
	if delta.Sign() == 0 {
		return nil
	}
	totalSupply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	return l.st.SetBig(slotTotalSupply, new(big.Int).Add(totalSupply, delta))
}

func (l *Ledger) addShares(addr common.Address, shares *big.Int) error {
	totalShares, err := l.TotalShares()
	if err != nil {
		return err
	}
	if err := l.st.SetBig(slotTotalShares, new(big.Int).Add(totalShares, shares)); err != nil {
		return err
	}
	cur, err := l.SharesOf(addr)
	if err != nil {
		return err
	}
	return l.st.SetBig(accountKey(addr), new(big.Int).Add(cur, shares))
}

func (l *Ledger) subShares(addr common.Address, shares *big.Int) error {
	cur, err := l.SharesOf(addr)
	if err != nil {
		return err
	}
	if cur.Cmp(shares) < 0 {
		return xerrors.ErrInsufficientBalance
	}
	totalShares, err := l.TotalShares()
	if err != nil {
		return err
	}
	if err := l.st.SetBig(slotTotalShares, new(big.Int).Sub(totalShares, shares)); err != nil {
		return err
	}
	return l.setShares(addr, new(big.Int).Sub(cur, shares))
}

// setShares stores an account's share balance, dropping the slot entirely
// when the account is emptied.
func (l *Ledger) setShares(addr common.Address, shares *big.Int) error {
	if shares.Sign() == 0 {
		l.st.Delete(accountKey(addr))
		return nil
	}
	return l.st.SetBig(accountKey(addr), shares)
}

func floorMulDiv(a, b, c *big.Int) *big.Int {
	// double-width intermediate product; big.Int grows as needed
	p := new(big.Int).Mul(a, b)
	return p.Div(p, c)
}

func ceilMulDiv(a, b, c *big.Int) *big.Int {
	p := new(big.Int).Mul(a, b)
	p.Add(p, new(big.Int).Sub(c, big.NewInt(1)))
	return p.Div(p, c)
}
