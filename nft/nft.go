// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package nft tracks ownership of claim check tokens.
//
// It implements the usual owner/approval/operator access model: the owner
// of a token may approve a single address per token, or grant an operator
// blanket approval over all of their tokens.
package nft

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/xerrors"
)

// ErrNonexistentToken is returned when querying a token that was never
// issued or was already burned.
var ErrNonexistentToken = errors.New("nonexistent token")

// Registry is an in-memory claim check token registry.
type Registry struct {
	mu        sync.Mutex
	owners    map[uint64]common.Address
	approved  map[uint64]common.Address
	operators map[common.Address]map[common.Address]bool
	balances  map[common.Address]uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:    make(map[uint64]common.Address),
		approved:  make(map[uint64]common.Address),
		operators: make(map[common.Address]map[common.Address]bool),
		balances:  make(map[common.Address]uint64),
	}
}

// OnIssue records a freshly issued token.
func (r *Registry) OnIssue(tokenID uint64, to common.Address) error {
	if to == (common.Address{}) {
		return xerrors.ErrTransferAddressZero
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[tokenID]; ok {
		return errors.Errorf("token %d already issued", tokenID)
	}
	r.owners[tokenID] = to
	r.balances[to]++
	return nil
}

// OnBurn removes a settled token.
func (r *Registry) OnBurn(tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrNonexistentToken
	}
	delete(r.owners, tokenID)
	delete(r.approved, tokenID)
	r.balances[owner]--
	return nil
}

// OwnerOf returns the current owner of a token.
func (r *Registry) OwnerOf(tokenID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return common.Address{}, ErrNonexistentToken
	}
	return owner, nil
}

// BalanceOf returns the number of tokens held by an address.
func (r *Registry) BalanceOf(addr common.Address) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[addr]
}

// Approve grants spender control over a single token. Only the token owner
// or one of their operators may approve.
func (r *Registry) Approve(caller, spender common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrNonexistentToken
	}
	if caller != owner && !r.operators[owner][caller] {
		return xerrors.ErrPermissionDenied
	}
	r.approved[tokenID] = spender
	return nil
}

// GetApproved returns the address approved for a token, if any.
func (r *Registry) GetApproved(tokenID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[tokenID]; !ok {
		return common.Address{}, ErrNonexistentToken
	}
	return r.approved[tokenID], nil
}

// SetApprovalForAll grants or revokes operator rights over all of the
// caller's tokens.
func (r *Registry) SetApprovalForAll(caller, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operators[caller] == nil {
		r.operators[caller] = make(map[common.Address]bool)
	}
	r.operators[caller][operator] = approved
}

// IsApprovedForAll reports whether operator may act on all of owner's
// tokens.
func (r *Registry) IsApprovedForAll(owner, operator common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.operators[owner][operator]
}

// TransferFrom moves a token. The caller must be the owner, the approved
// address or an operator of the owner.
func (r *Registry) TransferFrom(caller, from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) {
		return xerrors.ErrTransferAddressZero
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[tokenID]
	if !ok {
		return ErrNonexistentToken
	}
	if owner != from {
		return xerrors.ErrPermissionDenied
	}
	if !r.isApprovedOrOwner(caller, tokenID) {
		return xerrors.ErrPermissionDenied
	}
	delete(r.approved, tokenID)
	r.owners[tokenID] = to
	r.balances[from]--
	r.balances[to]++
	return nil
}

// IsApprovedOrOwner reports whether caller may act on the token.
func (r *Registry) IsApprovedOrOwner(caller common.Address, tokenID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[tokenID]; !ok {
		return false, ErrNonexistentToken
	}
	return r.isApprovedOrOwner(caller, tokenID), nil
}

func (r *Registry) isApprovedOrOwner(caller common.Address, tokenID uint64) bool {
	owner := r.owners[tokenID]
	return caller == owner || r.approved[tokenID] == caller || r.operators[owner][caller]
}
