// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scope drives a networked digital oscilloscope: it configures
// the instrument and streams its waveforms into an event writer.
package scope // import "github.com/go-lpc/oscope/scope"

import (
	"errors"
	"log"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrNoResponse is returned when the instrument did not send
	// anything back before the query timeout.
	ErrNoResponse = errors.New("scope: no response")

	// ErrConfig is returned when the instrument could not be configured.
	ErrConfig = errors.New("scope: invalid configuration reply")

	// ErrDial is returned when no connection to the instrument could be
	// established.
	ErrDial = errors.New("scope: could not connect")
)

// Option configures a Device.
type Option func(*Device)

// WithConfig sets the configuration of the device.
func WithConfig(cfg Config) Option {
	return func(dev *Device) {
		dev.cfg = cfg
	}
}

// WithLogger sets the logger of the device.
func WithLogger(msg *log.Logger) Option {
	return func(dev *Device) {
		dev.msg = msg
	}
}

// WithMetrics registers the acquisition metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(dev *Device) {
		dev.reg = reg
	}
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "scope: ", 0)
}
