// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

// Package stakingapi exposes the staking service's read surface over HTTP.
package stakingapi

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/Swapscanner/klaystaking-core/api/restutil"
	"github.com/Swapscanner/klaystaking-core/staking"
	"github.com/Swapscanner/klaystaking-core/staking/claimcheck"
	"github.com/Swapscanner/klaystaking-core/xerrors"
)

type StakingAPI struct {
	svc *staking.Service
}

func New(svc *staking.Service) *StakingAPI {
	return &StakingAPI{svc}
}

// Mount attaches the handlers under the given path prefix.
func (a *StakingAPI) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/supply").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetSupply))
	sub.Path("/supply/history").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetSupplyHistory))
	sub.Path("/fee").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetFee))
	sub.Path("/accounts/{address}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetAccount))
	sub.Path("/accounts/{address}/votes").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetVotes))
	sub.Path("/claims/{id}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleGetClaim))
}

func (a *StakingAPI) handleGetSupply(w http.ResponseWriter, _ *http.Request) error {
	totalShares, err := a.svc.TotalShares()
	if err != nil {
		return err
	}
	totalSupply, err := a.svc.TotalSupply()
	if err != nil {
		return err
	}
	unstaking, err := a.svc.UnstakingTotal()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"totalShares": totalShares.String(),
		"totalSupply": totalSupply.String(),
		"unstaking":   unstaking.String(),
	})
}

func (a *StakingAPI) handleGetSupplyHistory(w http.ResponseWriter, req *http.Request) error {
	block, err := parseBlock(req.URL.Query().Get("block"))
	if err != nil {
		return err
	}
	totalShares, err := a.svc.PastTotalShares(block)
	if err != nil {
		if errors.Is(err, xerrors.ErrBlockNotYetMined) {
			return restutil.BadRequest(err)
		}
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"block":       block,
		"totalShares": totalShares.String(),
	})
}

func (a *StakingAPI) handleGetFee(w http.ResponseWriter, _ *http.Request) error {
	feeTo, numerator, denominator, err := a.svc.FeeConfig()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"feeTo":          feeTo.Hex(),
		"feeNumerator":   numerator,
		"feeDenominator": denominator,
	})
}

func (a *StakingAPI) handleGetAccount(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return err
	}
	balance, err := a.svc.BalanceOf(addr)
	if err != nil {
		return err
	}
	shares, err := a.svc.SharesOf(addr)
	if err != nil {
		return err
	}
	votes, err := a.svc.Votes(addr)
	if err != nil {
		return err
	}
	delegatee, err := a.svc.Delegates(addr)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"balance":   balance.String(),
		"display":   claimcheck.FormatAmount(balance),
		"shares":    shares.String(),
		"votes":     votes.String(),
		"delegatee": delegatee.Hex(),
	})
}

func (a *StakingAPI) handleGetVotes(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(mux.Vars(req)["address"])
	if err != nil {
		return err
	}
	block, err := parseBlock(req.URL.Query().Get("block"))
	if err != nil {
		return err
	}
	votes, err := a.svc.PastVotes(addr, block)
	if err != nil {
		if errors.Is(err, xerrors.ErrBlockNotYetMined) {
			return restutil.BadRequest(err)
		}
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"block": block,
		"votes": votes.String(),
	})
}

func (a *StakingAPI) handleGetClaim(w http.ResponseWriter, req *http.Request) error {
	tokenID, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
	ticket, err := a.svc.ClaimCheck(tokenID)
	if err != nil {
		if errors.Is(err, xerrors.ErrUnknownClaimCheck) {
			return restutil.NotFound(err)
		}
		return err
	}
	status, err := a.svc.ClaimCheckStatus(tokenID)
	if err != nil {
		return err
	}
	description, err := a.svc.DescribeClaimCheck(tokenID)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, restutil.M{
		"id":               tokenID,
		"requester":        ticket.Requester.Hex(),
		"amount":           ticket.Amount.String(),
		"display":          claimcheck.FormatAmount(ticket.Amount),
		"withdrawableFrom": ticket.WithdrawableFrom,
		"status":           status.String(),
		"description":      description,
	})
}

func parseAddress(hexAddr string) (common.Address, error) {
	if !common.IsHexAddress(hexAddr) {
		return common.Address{}, restutil.BadRequest(errors.New("invalid address"))
	}
	return common.HexToAddress(hexAddr), nil
}

func parseBlock(raw string) (uint64, error) {
	if raw == "" {
		return 0, restutil.BadRequest(errors.New("block query parameter required"))
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, restutil.BadRequest(errors.WithMessage(err, "block"))
	}
	return block, nil
}
