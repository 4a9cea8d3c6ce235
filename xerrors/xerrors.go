// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package xerrors defines the error taxonomy shared by the staking ledger
// and its subsystems. All of these abort the triggering operation; none are
// retried internally. Match with errors.Is.
package xerrors

import "errors"

var (
	// ErrInsufficientBalance is returned when a burn, transfer or unstake
	// amount exceeds the available shares-as-amount of the account.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAmountTooSmall is returned when a requested mutation would round to
	// zero shares, or a zero-amount unstake was requested.
	ErrAmountTooSmall = errors.New("amount too small")

	// ErrTransferAddressZero is returned for a mint, burn or transfer
	// targeting the zero address.
	ErrTransferAddressZero = errors.New("transfer to/from zero address")

	// ErrExcessiveFee is returned when a fee configuration violates the rate
	// ceiling.
	ErrExcessiveFee = errors.New("excessive fee")

	// ErrUndefinedFeeTo is returned when a non-zero fee rate is set with no
	// fee recipient.
	ErrUndefinedFeeTo = errors.New("undefined feeTo")

	// ErrPermissionDenied is returned when a cancel is attempted by a
	// non-requester, a claim without ownership or approval, or an admin
	// operation by a non-owner.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotYetWithdrawable is returned when a claim is attempted while the
	// claim check is still pending. Retryable once the lockup elapses.
	ErrNotYetWithdrawable = errors.New("not withdrawable yet")

	// ErrNotAllowed is returned by primitive entry points that must only be
	// reached through the sanctioned operations.
	ErrNotAllowed = errors.New("not allowed")

	// ErrInsufficientAllowance is returned when a delegated spend exceeds the
	// spender's remaining allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrBlockNotYetMined is returned by historical voting-power queries for
	// a block number at or beyond the current block.
	ErrBlockNotYetMined = errors.New("block not yet mined")

	// ErrUnknownClaimCheck is returned when a claim check id does not refer
	// to an outstanding withdrawal request.
	ErrUnknownClaimCheck = errors.New("unknown claim check")
)
