// Copyright (c) 2024 djtezos contributors

// Command djtezos is the batch-driver CLI from spec §6: balance, sync and
// write are cron-friendly one-shot passes over a shared Store, grounded on
// cmd/tzcompose/main.go's flag-set-per-subcommand dispatch (no CLI
// framework; the teacher never reaches for one, see DESIGN.md).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/yourlabs/djtezos/config"
	"github.com/yourlabs/djtezos/store/sqlstore"

	_ "github.com/yourlabs/djtezos/provider/ethprovider"
	_ "github.com/yourlabs/djtezos/provider/fakeprovider"
	_ "github.com/yourlabs/djtezos/provider/tezosprovider"
)

var (
	flags    = flag.NewFlagSet(appName, flag.ContinueOnError)
	cmdflags = flag.NewFlagSet("cmd", flag.ContinueOnError)
	errExit  = errors.New("exit")
	errNoCmd = errors.New("unsupported command")
	verbose  bool
	vtrace   bool
	vdebug   bool
	cmd      string = "[cmd]"

	dsn string
	cfg = config.Default()
)

func init() {
	flags.Usage = func() {}
	flags.BoolVar(&verbose, "v", true, "be verbose")
	flags.BoolVar(&vdebug, "vv", false, "debug mode")
	flags.BoolVar(&vtrace, "vvv", false, "trace mode")

	cmdflags.Usage = func() {}
	cmdflags.StringVar(&dsn, "db", "djtezos.db", "sqlite database path")
	cfg.FlagSet(cmdflags)
}

func main() {
	if err := parseFlags(); err != nil {
		if err != errExit {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}
	initLogging()
	cfg.LoadSecretFromEnv()

	if err := run(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := sqlstore.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	switch cmd {
	case "version":
		printVersion()
		return nil
	case "balance":
		return runBalance(ctx, st)
	case "sync":
		return runSync(ctx, st)
	case "write":
		return runWrite(ctx, st)
	default:
		return errNoCmd
	}
}

func parseFlags() error {
	if len(os.Args) < 2 {
		printHelp()
		return errExit
	}

	n := 1
	if !strings.HasPrefix(os.Args[n], "-") {
		cmd = os.Args[n]
		n++
	}

	switch cmd {
	case "balance", "sync", "write", "version", "[cmd]":
		// ok
	default:
		return errNoCmd
	}

	if err := flags.Parse(filterFlags(flags, os.Args[n:])); err != nil {
		if err == flag.ErrHelp {
			printHelp()
			return errExit
		}
		return err
	}

	switch cmd {
	case "balance", "sync", "write":
		if err := cmdflags.Parse(filterFlags(cmdflags, os.Args[2:])); err != nil {
			if err == flag.ErrHelp {
				printHelp()
				return errExit
			}
			return err
		}
	}
	return nil
}

func filterFlags(set *flag.FlagSet, args []string) []string {
	res := make([]string, 0)
	var maybeCopyNext bool
	for _, v := range args {
		if strings.HasPrefix(v, "-") {
			f := set.Lookup(v[1:])
			if f == nil && v != "-h" {
				maybeCopyNext = false
				continue
			}
			maybeCopyNext = true
			res = append(res, v)
		} else if maybeCopyNext {
			maybeCopyNext = false
			res = append(res, v)
		}
	}
	return res
}

func printHelp() {
	fmt.Printf("(c) Copyright %d djtezos contributors\n", time.Now().Year())
	fmt.Printf("Usage:  %s %s [flags]\n", appName, cmd)
	switch cmd {
	case "balance", "sync", "write":
		fmt.Println("\nEnv")
		fmt.Println("  SECRET      master secret used to derive AES key/IV")
		fmt.Println("  FAKE_SLEEP  per-operation delay for the Fake Provider, seconds")
		fmt.Println("\nFlags")
		cmdflags.PrintDefaults()
		fmt.Println("  -h	print help and exit")
		flags.PrintDefaults()
	default:
		fmt.Println("\nCommands")
		fmt.Println("  balance   fetch and persist every Account's balance")
		fmt.Println("  sync      run one Chain Watcher pass per active Blockchain")
		fmt.Println("  write     run one Writer pass")
		fmt.Println("  version   print version and exit")
		fmt.Println("\nFlags")
		fmt.Println("  -h	print help and exit")
		flags.PrintDefaults()
	}
}
