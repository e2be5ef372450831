// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scope

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of an acquisition.
type Config struct {
	FIFOSize  int `yaml:"fifo_size"`  // capacity of the receiver/parser FIFO, in bytes
	FIFOSpins int `yaml:"fifo_spins"` // non-blocking lock attempts before blocking
	ReadSize  int `yaml:"read_size"`  // socket read size, in bytes
	PopSize   int `yaml:"pop_size"`   // FIFO pop size, in bytes

	QueryTimeout time.Duration `yaml:"query_timeout"` // response window of a configuration transaction
	StallTimeout time.Duration `yaml:"stall_timeout"` // read timeout while streaming

	DialTimeout    time.Duration `yaml:"dial_timeout"` // timeout of a single connection attempt
	DialAttempts   int           `yaml:"dial_attempts"`
	DialBackoff    time.Duration `yaml:"dial_backoff"`
	DialMaxBackoff time.Duration `yaml:"dial_max_backoff"`

	Pipeline bool  `yaml:"pipeline"`  // decouple receiver and parser with a FIFO
	LogEvery int64 `yaml:"log_every"` // progress report period, in events
}

// DefaultConfig returns the default acquisition configuration.
func DefaultConfig() Config {
	return Config{
		FIFOSize:       512 * 1024 * 1024,
		FIFOSpins:      8192,
		ReadSize:       8192,
		PopSize:        4 * 8192,
		QueryTimeout:   500 * time.Millisecond,
		StallTimeout:   10 * time.Second,
		DialTimeout:    5 * time.Second,
		DialAttempts:   2,
		DialBackoff:    1 * time.Second,
		DialMaxBackoff: 2 * time.Second,
		Pipeline:       true,
		LogEvery:       100,
	}
}

// LoadConfig reads a YAML configuration file.
// Fields missing from the file keep their default value.
func LoadConfig(fname string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, fmt.Errorf("scope: could not read config file: %w", err)
	}

	err = yaml.Unmarshal(raw, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("scope: could not decode config file %q: %w", fname, err)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the configuration is consistent.
func (cfg Config) Validate() error {
	switch {
	case cfg.ReadSize <= 0:
		return fmt.Errorf("scope: invalid read size (%d)", cfg.ReadSize)
	case cfg.PopSize <= 0:
		return fmt.Errorf("scope: invalid pop size (%d)", cfg.PopSize)
	case cfg.Pipeline && cfg.FIFOSize <= cfg.ReadSize:
		return fmt.Errorf(
			"scope: fifo size (%d) too small for read size (%d)",
			cfg.FIFOSize, cfg.ReadSize,
		)
	case cfg.QueryTimeout <= 0:
		return fmt.Errorf("scope: invalid query timeout (%v)", cfg.QueryTimeout)
	case cfg.StallTimeout <= 0:
		return fmt.Errorf("scope: invalid stall timeout (%v)", cfg.StallTimeout)
	case cfg.DialTimeout <= 0:
		return fmt.Errorf("scope: invalid dial timeout (%v)", cfg.DialTimeout)
	case cfg.DialAttempts <= 0:
		return fmt.Errorf("scope: invalid number of dial attempts (%d)", cfg.DialAttempts)
	}
	return nil
}
