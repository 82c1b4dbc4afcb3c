// Copyright (c) 2024 djtezos contributors

package main

import (
	logpkg "github.com/echa/log"

	"blockwatch.cc/tzgo/rpc"
)

var (
	log        = logpkg.NewLogger("MAIN")
	rpcLog     = logpkg.NewLogger("RPC ")
	LevelTrace = logpkg.LevelTrace
)

// loggers maps each subsystem identifier to its associated logger, the way
// cmd/tzcompose/log.go maps MAIN/RPC/TASK.
var loggers = map[string]logpkg.Logger{
	"MAIN": log,
	"RPC":  rpcLog,
}

func initLogging() {
	rpc.UseLogger(rpcLog)

	var lvl logpkg.Level
	switch {
	case vtrace:
		lvl = logpkg.LevelTrace
	case vdebug:
		lvl = logpkg.LevelDebug
	case verbose:
		lvl = logpkg.LevelInfo
	default:
		lvl = logpkg.LevelWarn
	}
	setLogLevels(lvl)
}

func setLogLevels(level logpkg.Level) {
	for _, logger := range loggers {
		logger.SetLevel(level)
	}
}
