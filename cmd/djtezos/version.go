// Copyright (c) 2024 djtezos contributors

package main

import (
	"fmt"
	"runtime"
	"time"
)

var (
	appName           = "djtezos"
	appVersion string = "v0.1"
)

func printVersion() {
	fmt.Printf("(c) Copyright %d djtezos contributors\n", time.Now().Year())
	fmt.Printf("%s, version %s\n", appName, appVersion)
	fmt.Printf("Go version: %s\n", runtime.Version())
}
