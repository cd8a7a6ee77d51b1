// Copyright (C) 2025 Creditor Corp. Group.
// See LICENSE for copying information.

package psbt

import (
	"github.com/btcsuite/btclog"
)

// Subsystem defines logging subsystem name of the package.
const Subsystem = "PSBT"

// log is a logger that is initialized with no output filters.
// The package logs nothing until the caller requests it.
var log btclog.Logger

func init() {
	DisableLog()
}

// DisableLog disables all package log output.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger btclog.Logger) {
	log = logger
}
