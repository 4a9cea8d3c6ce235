// Copyright (c) 2023 Swapscanner
//
// Distributed under the MIT software license, see the accompanying
// file LICENSE or <https://opensource.org/licenses/MIT>

package main

import (
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the daemon's YAML configuration.
type Config struct {
	// Owner is the administrative account; it may set fees and the stats
	// interval.
	Owner string `yaml:"owner"`
	Fee   struct {
		To          string `yaml:"to"`
		Numerator   uint64 `yaml:"numerator"`
		Denominator uint64 `yaml:"denominator"`
	} `yaml:"fee"`
	// ExpiryWindow overrides the claim window in seconds; zero keeps the
	// default.
	ExpiryWindow uint64 `yaml:"expiryWindow"`
	// Lockup overrides the withdrawal lockup in seconds; zero keeps the
	// default.
	Lockup uint64 `yaml:"lockup"`
	// StatsInterval is the minimum seconds between stats log lines.
	StatsInterval uint64 `yaml:"statsInterval"`
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return &cfg, nil
}

func (c *Config) ownerAddress() (common.Address, error) {
	return parseOptionalAddress(c.Owner)
}

func (c *Config) feeToAddress() (common.Address, error) {
	return parseOptionalAddress(c.Fee.To)
}

func parseOptionalAddress(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
