package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `macropinna-remote - pair phones with the launcher and use them as a remote

Usage:
  macropinna-remote <command> [options]

Commands:
  serve              Run the remote server
  pending            List devices waiting for approval
  active             List connected devices
  approve <uuid>     Approve a pending device
  reject <uuid>      Reject a pending device
  watch              Stream pairing events as they happen
  urls [--qr]        Show the URLs a device can open
  discover           Find other hosts on the local network
  version            Print the version

Run 'macropinna-remote <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		fmt.Fprint(stdout, usage)
		return 0
	}

	switch args[1] {
	case "serve":
		return runServe(args[2:], stdout, stderr)
	case "pending":
		return runPending(args[2:], stdout, stderr)
	case "active":
		return runActive(args[2:], stdout, stderr)
	case "approve":
		return runDecision(args[2:], true, stdout, stderr)
	case "reject":
		return runDecision(args[2:], false, stdout, stderr)
	case "watch":
		return runWatch(args[2:], stdout, stderr)
	case "urls":
		return runURLs(args[2:], stdout, stderr)
	case "discover":
		return runDiscover(args[2:], stdout, stderr)
	case "--help", "-h", "help":
		fmt.Fprint(stdout, usage)
		return 0
	case "--version", "-v", "version":
		fmt.Fprintf(stdout, "macropinna-remote %s\n", Version)
		return 0
	default:
		fmt.Fprintf(stdout, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
