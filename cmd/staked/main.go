// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	isatty "github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/Swapscanner/klaystaking-core/api"
	"github.com/Swapscanner/klaystaking-core/log"
	"github.com/Swapscanner/klaystaking-core/lvldb"
	"github.com/Swapscanner/klaystaking-core/metrics"
	"github.com/Swapscanner/klaystaking-core/nft"
	"github.com/Swapscanner/klaystaking-core/staking"
	"github.com/Swapscanner/klaystaking-core/staking/claimcheck"
	"github.com/Swapscanner/klaystaking-core/state"
	"github.com/Swapscanner/klaystaking-core/vault"
)

var (
	version   string
	gitCommit string
	logger    = log.WithContext("pkg", "main")
)

func fullVersion() string {
	if version == "" {
		return "dev"
	}
	return fmt.Sprintf("%s-%s", version, gitCommit)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "staked",
		Usage:     "proxy-staked KLAY ledger daemon",
		Copyright: "2023 Swapscanner",
		Flags: []cli.Flag{
			dataDirFlag,
			configFlag,
			apiAddrFlag,
			apiCorsFlag,
			verbosityFlag,
			enableMetricsFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	initLogger(ctx)

	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	owner, err := cfg.ownerAddress()
	if err != nil {
		return err
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	dataDir := ctx.String(dataDirFlag.Name)
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	db, err := lvldb.New(filepath.Join(dataDir, "ledger.db"), lvldb.Options{})
	if err != nil {
		return err
	}
	defer func() {
		logger.Info("closing ledger database...")
		db.Close()
	}()

	pool := vault.NewMemory(cfg.Lockup, func() uint64 { return uint64(time.Now().Unix()) })
	svc := staking.New(state.New(db), pool, nft.NewRegistry(), nil, staking.Options{
		Owner:        owner,
		ExpiryWindow: cfg.ExpiryWindow,
		OnStats: func(totalShares, totalSupply *big.Int) {
			logger.Info("supply stats",
				"totalShares", totalShares,
				"totalSupply", claimcheck.FormatAmount(totalSupply))
		},
	})
	if err := applyConfig(svc, cfg, owner); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    ctx.String(apiAddrFlag.Name),
		Handler: api.New(svc, apiOptions(ctx)),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down...", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func applyConfig(svc *staking.Service, cfg *Config, owner common.Address) error {
	feeTo, err := cfg.feeToAddress()
	if err != nil {
		return err
	}
	if feeTo != (common.Address{}) || cfg.Fee.Numerator > 0 {
		denominator := cfg.Fee.Denominator
		if denominator == 0 {
			denominator = 100
		}
		if err := svc.SetFee(owner, feeTo, cfg.Fee.Numerator, denominator); err != nil {
			return err
		}
	}
	if cfg.StatsInterval > 0 {
		if err := svc.SetStatsDebounceInterval(owner, cfg.StatsInterval); err != nil {
			return err
		}
	}
	return nil
}

func apiOptions(ctx *cli.Context) api.Options {
	opts := api.Options{
		EnableMetrics: ctx.Bool(enableMetricsFlag.Name),
	}
	if cors := ctx.String(apiCorsFlag.Name); cors != "" {
		opts.AllowedOrigins = strings.Split(cors, ",")
	}
	return opts
}

func initLogger(ctx *cli.Context) {
	level := slog.LevelInfo
	switch ctx.Int(verbosityFlag.Name) {
	case 0:
		level = slog.LevelError
	case 1:
		level = slog.LevelWarn
	case 2:
		level = slog.LevelInfo
	default:
		level = slog.LevelDebug
	}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetRootHandler(log.NewTerminalHandler(os.Stderr, level, true))
	} else {
		log.SetRootHandler(log.JSONHandler(os.Stderr, level))
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".staked"
	}
	return filepath.Join(home, ".staked")
}
