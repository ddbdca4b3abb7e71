// Copyright (c) 2019-2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/quipflip/quipflip/controllers"
	"github.com/quipflip/quipflip/game"
	"github.com/quipflip/quipflip/ledger"
	"github.com/quipflip/quipflip/locks"
	"github.com/quipflip/quipflip/models"
	"github.com/quipflip/quipflip/phrase"
	"github.com/quipflip/quipflip/queue"
	"github.com/quipflip/quipflip/ratelimit"
	"github.com/quipflip/quipflip/signal"
	"github.com/quipflip/quipflip/system"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return logRotator.Write(p)
}

// Loggers per subsystem.  A single backend logger is created and all
// subsystem loggers created from it will write to the backend.  When adding
// new subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
var (
	// backendLog is the logging backend used to create all subsystem
	// loggers.  The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences will
	// occur.
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log            = backendLog.Logger("QFLP")
	controllersLog = backendLog.Logger("CNTL")
	gameLog        = backendLog.Logger("GAME")
	ledgerLog      = backendLog.Logger("LEDG")
	locksLog       = backendLog.Logger("LOCK")
	modelsLog      = backendLog.Logger("MODL")
	phraseLog      = backendLog.Logger("PHRS")
	queueLog       = backendLog.Logger("QUEU")
	ratelimitLog   = backendLog.Logger("RLIM")
	systemLog      = backendLog.Logger("SYTM")
)

// Initialize package-global logger variables.
func init() {
	controllers.UseLogger(controllersLog)
	game.UseLogger(gameLog)
	ledger.UseLogger(ledgerLog)
	locks.UseLogger(locksLog)
	models.UseLogger(modelsLog)
	phrase.UseLogger(phraseLog)
	queue.UseLogger(queueLog)
	ratelimit.UseLogger(ratelimitLog)
	signal.UseLogger(log)
	system.UseLogger(systemLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"QFLP": log,
	"CNTL": controllersLog,
	"GAME": gameLog,
	"LEDG": ledgerLog,
	"LOCK": locksLog,
	"MODL": modelsLog,
	"PHRS": phraseLog,
	"QUEU": queueLog,
	"RLIM": ratelimitLog,
	"SYTM": systemLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile and
// create roll files in the same directory.  It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) {
	logDir, _ := filepath.Split(logFile)
	err := os.MkdirAll(logDir, 0700)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create file rotator: %v\n", err)
		os.Exit(1)
	}

	logRotator = r
}

// setLogLevel sets the logging level for provided subsystem.  Invalid
// subsystems are ignored.
func setLogLevel(subsystemID string, logLevel string) {
	// Ignore invalid subsystems.
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}

	// Defaults to info if the log level is invalid.
	level, _ := slog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for all subsystem loggers to the passed
// level.  It also dynamically creates the subsystem loggers as needed, so it
// can be used to initialize the logging system.
func setLogLevels(logLevel string) {
	// Configure all sub-systems with the new logging level.  Dynamically
	// create loggers as needed.
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
