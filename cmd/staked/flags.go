// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory for the ledger database",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to the YAML config file",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8554",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (0-4: error, warn, info, debug, trace)",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "serve prometheus metrics at /metrics",
	}
)
