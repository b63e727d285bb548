// Package main implements the seqstress CLI tool.
//
// seqstress hammers a seqlock.SeqLock with concurrent readers, one writer
// and a TryLock prober, and fails if any reader ever observes a value that
// no write committed. It is the soak test for the package, runnable on any
// machine and under -race.
//
// Usage:
//
//	seqstress run                        # 8 readers, 10000 writes
//	seqstress run --readers 32 --writes 1000000 --metrics-addr :9100
//	seqstress version --require v0.1.0
package main

import (
	"fmt"
	"os"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("seqstress")

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	var err error
	switch command {
	case "run":
		err = runCommand(os.Args[2:])
	case "version", "--version", "-v":
		err = versionCommand(os.Args[2:], os.Stdout)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`seqstress - stress tool for seqlock

USAGE:
    seqstress <command> [arguments]

COMMANDS:
    run        Run readers against a writer and verify every snapshot
    version    Show version information
    help       Show this help message

RUN FLAGS:
    --readers N          Concurrent reader goroutines (default 8)
    --writes N           Writes committed by the writer (default 10000)
    --initial N          Initial value (default 0)
    --metrics-addr ADDR  Serve Prometheus metrics on ADDR during the run
    --log-level LEVEL    TRACE, DEBUG, INFO, WARNING or ERROR (default INFO)

EXAMPLES:
    # The standard scenario
    seqstress run

    # A longer soak with metrics
    seqstress run --readers 64 --writes 5000000 --metrics-addr :9100

    # Fail unless the linked package is at least v0.1.0
    seqstress version --require v0.1.0

`)
}
