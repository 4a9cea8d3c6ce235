// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package claimcheck manages unstaking claim checks.
//
// Unstaking burns the staked balance immediately and issues a transferable
// claim check (an NFT) for the exact amount. The claim check matures when
// the pool releases the funds, stays claimable for an expiry window, and
// after that can only be re-staked to its current owner.
package claimcheck

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/staking/ledger"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// DefaultExpiryWindow is how long a matured claim check stays claimable.
const DefaultExpiryWindow = 7 * 24 * 3600

// Status is the lifecycle state of a claim check.
type Status uint8

const (
	// StatusPending means the pool has not released the funds yet.
	StatusPending Status = iota
	// StatusValid means the funds can be claimed right now.
	StatusValid
	// StatusClaimed is terminal: the funds were paid out or re-staked.
	StatusClaimed
	// StatusExpired means the claim window has passed; claiming now
	// re-stakes the funds to the current owner.
	StatusExpired
	// StatusCancelled is terminal: the requester took the stake back.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusValid:
		return "valid"
	case StatusClaimed:
		return "claimed"
	case StatusExpired:
		return "expired"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// ticket resolutions, stored once a claim check reaches a terminal state.
const (
	resolutionNone uint8 = iota
	resolutionClaimed
	resolutionCancelled
)

// Ticket is the persistent record behind a claim check token.
type Ticket struct {
	Requester        common.Address
	Amount           *big.Int
	WithdrawableFrom uint64
	RequestID        uint64
	Resolution       uint8
}

// Vault is the consensus-layer staking pool the lifecycle requests
// withdrawals from.
type Vault interface {
	RequestWithdrawal(amount *big.Int) (requestID, withdrawableFrom uint64, err error)
	CancelWithdrawal(requestID uint64) error
	Withdraw(requestID uint64, to common.Address) error
}

// NFT is the token registry representing claim check ownership.
type NFT interface {
	OnIssue(tokenID uint64, to common.Address) error
	OnBurn(tokenID uint64) error
	OwnerOf(tokenID uint64) (common.Address, error)
	IsApprovedOrOwner(caller common.Address, tokenID uint64) (bool, error)
}

// PowerMover propagates share movements into the voting power histories.
// From or to being the zero address denotes a mint or burn.
type PowerMover interface {
	MovePower(from, to common.Address, shares *big.Int) error
}

var (
	slotNextTokenID    = common.BytesToHash([]byte("claim-next-id"))
	slotUnstakingTotal = common.BytesToHash([]byte("unstaking-total"))
)

func ticketKey(tokenID uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tokenID)
	return crypto.Keccak256Hash([]byte("claim-ticket"), buf[:])
}

// Lifecycle drives claim checks from issuance to their terminal state.
type Lifecycle struct {
	st           *state.State
	ledger       *ledger.Ledger
	vault        Vault
	nft          NFT
	mover        PowerMover
	expiryWindow uint64
}

// New creates a lifecycle. A zero expiryWindow selects DefaultExpiryWindow.
func New(st *state.State, l *ledger.Ledger, vault Vault, nft NFT, mover PowerMover, expiryWindow uint64) *Lifecycle {
	if expiryWindow == 0 {
		expiryWindow = DefaultExpiryWindow
	}
	return &Lifecycle{
		st:           st,
		ledger:       l,
		vault:        vault,
		nft:          nft,
		mover:        mover,
		expiryWindow: expiryWindow,
	}
}

// ExpiryWindow returns the configured claim window in seconds.
func (c *Lifecycle) ExpiryWindow() uint64 { return c.expiryWindow }

// UnstakingTotal returns the sum of all unresolved claim check amounts.
func (c *Lifecycle) UnstakingTotal() (*big.Int, error) {
	return c.st.GetBig(slotUnstakingTotal)
}

// NextTokenID returns the id the next issued claim check will get.
func (c *Lifecycle) NextTokenID() (uint64, error) {
	return c.st.GetUint64(slotNextTokenID)
}

// Ticket returns the stored record of a claim check.
func (c *Lifecycle) Ticket(tokenID uint64) (*Ticket, error) {
	var tk Ticket
	found, err := c.st.Get(ticketKey(tokenID), &tk)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, xerrors.ErrUnknownClaimCheck
	}
	return &tk, nil
}

// StatusOf derives the status of a claim check at the given time.
func (c *Lifecycle) StatusOf(tokenID uint64, now uint64) (Status, error) {
	tk, err := c.Ticket(tokenID)
	if err != nil {
		return 0, err
	}
	return c.status(tk, now), nil
}

func (c *Lifecycle) status(tk *Ticket, now uint64) Status {
	switch tk.Resolution {
	case resolutionClaimed:
		return StatusClaimed
	case resolutionCancelled:
		return StatusCancelled
	}
	switch {
	case now < tk.WithdrawableFrom:
		return StatusPending
	case now < tk.WithdrawableFrom+c.expiryWindow:
		return StatusValid
	}
	return StatusExpired
}

// Issue burns amount from the requester's balance, registers a withdrawal
// with the vault and mints a claim check NFT to the requester. Returns the
// new token id.
func (c *Lifecycle) Issue(requester common.Address, amount *big.Int) (tokenID uint64, err error) {
	if amount.Sign() == 0 {
		return 0, xerrors.ErrAmountTooSmall
	}
	balance, err := c.ledger.BalanceOf(requester)
	if err != nil {
		return 0, err
	}
	if amount.Cmp(balance) > 0 {
		return 0, xerrors.ErrInsufficientBalance
	}

	requestID, withdrawableFrom, err := c.vault.RequestWithdrawal(amount)
	if err != nil {
		return 0, errors.Wrap(err, "request withdrawal")
	}
	// the caller's journal rolls the ledger back on failure, but the vault
	// is external: a failed issue must release its pending withdrawal
	defer func() {
		if err != nil {
			_ = c.vault.CancelWithdrawal(requestID)
		}
	}()

	// unstaking the full balance burns every share so no dust is left
	var burned *big.Int
	if amount.Cmp(balance) == 0 {
		if burned, err = c.ledger.SharesOf(requester); err != nil {
			return 0, err
		}
		if _, err = c.ledger.BurnShares(requester, burned); err != nil {
			return 0, err
		}
	} else if burned, err = c.ledger.BurnAmount(requester, amount); err != nil {
		return 0, err
	}
	if err = c.mover.MovePower(requester, common.Address{}, burned); err != nil {
		return 0, err
	}

	if tokenID, err = c.NextTokenID(); err != nil {
		return 0, err
	}
	c.st.SetUint64(slotNextTokenID, tokenID+1)
	tk := &Ticket{
		Requester:        requester,
		Amount:           amount,
		WithdrawableFrom: withdrawableFrom,
		RequestID:        requestID,
	}
	if err = c.st.Set(ticketKey(tokenID), tk); err != nil {
		return 0, err
	}
	if err = c.addUnstaking(amount); err != nil {
		return 0, err
	}

	if err = c.nft.OnIssue(tokenID, requester); err != nil {
		return 0, errors.Wrap(err, "issue claim check")
	}
	return tokenID, nil
}

// Claim settles a matured claim check. A valid one pays the amount to the
// current owner; an expired one re-stakes the amount to the current owner
// instead. Callable by the owner or an approved operator.
func (c *Lifecycle) Claim(caller common.Address, tokenID uint64, now uint64) error {
	tk, err := c.Ticket(tokenID)
	if err != nil {
		return err
	}
	if tk.Resolution != resolutionNone {
		return xerrors.ErrUnknownClaimCheck
	}
	ok, err := c.nft.IsApprovedOrOwner(caller, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.ErrPermissionDenied
	}

	status := c.status(tk, now)
	if status == StatusPending {
		return xerrors.ErrNotYetWithdrawable
	}
	owner, err := c.nft.OwnerOf(tokenID)
	if err != nil {
		return err
	}

	if status == StatusExpired {
		minted, err := c.ledger.MintSharesForAmount(owner, tk.Amount)
		if err != nil {
			return err
		}
		if err := c.mover.MovePower(common.Address{}, owner, minted); err != nil {
			return err
		}
	}
	if err := c.resolve(tokenID, tk, resolutionClaimed); err != nil {
		return err
	}

	if err := c.nft.OnBurn(tokenID); err != nil {
		return errors.Wrap(err, "burn claim check")
	}
	if status == StatusValid {
		if err := c.vault.Withdraw(tk.RequestID, owner); err != nil {
			return errors.Wrap(err, "withdraw")
		}
	} else if err := c.vault.CancelWithdrawal(tk.RequestID); err != nil {
		return errors.Wrap(err, "cancel withdrawal")
	}
	return nil
}

// Cancel aborts an unresolved claim check and re-stakes its amount to the
// original requester. Only the requester may cancel, and not after expiry.
func (c *Lifecycle) Cancel(caller common.Address, tokenID uint64, now uint64) error {
	tk, err := c.Ticket(tokenID)
	if err != nil {
		return err
	}
	if tk.Resolution != resolutionNone {
		return xerrors.ErrUnknownClaimCheck
	}
	if caller != tk.Requester {
		return xerrors.ErrPermissionDenied
	}
	if c.status(tk, now) == StatusExpired {
		return xerrors.ErrNotAllowed
	}

	minted, err := c.ledger.MintSharesForAmount(tk.Requester, tk.Amount)
	if err != nil {
		return err
	}
	if err := c.mover.MovePower(common.Address{}, tk.Requester, minted); err != nil {
		return err
	}
	if err := c.resolve(tokenID, tk, resolutionCancelled); err != nil {
		return err
	}

	if err := c.nft.OnBurn(tokenID); err != nil {
		return errors.Wrap(err, "burn claim check")
	}
	return errors.Wrap(c.vault.CancelWithdrawal(tk.RequestID), "cancel withdrawal")
}

func (c *Lifecycle) resolve(tokenID uint64, tk *Ticket, resolution uint8) error {
	tk.Resolution = resolution
	if err := c.st.Set(ticketKey(tokenID), tk); err != nil {
		return err
	}
	total, err := c.UnstakingTotal()
	if err != nil {
		return err
	}
	return c.st.SetBig(slotUnstakingTotal, new(big.Int).Sub(total, tk.Amount))
}

func (c *Lifecycle) addUnstaking(amount *big.Int) error {
	total, err := c.UnstakingTotal()
	if err != nil {
		return err
	}
	return c.st.SetBig(slotUnstakingTotal, new(big.Int).Add(total, amount))
}
