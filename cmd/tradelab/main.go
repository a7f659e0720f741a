package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.3.0"

// errUsage marks command-line mistakes; main exits 2 for them.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: tradelab <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  version              Print the CLI version\n")
	fmt.Fprintf(w, "  strategies           List registered strategies\n")
	fmt.Fprintf(w, "  ingest-history       Download daily bars from Alpaca into the data dir\n")
	fmt.Fprintf(w, "  show-latest-prices   Print the most recent stored bars\n")
	fmt.Fprintf(w, "  backtest             Run a strategy over stored bars and record the run\n")
	fmt.Fprintf(w, "  backtest-dry-run     Show what a backtest would process without running it\n")
	fmt.Fprintf(w, "  runs                 List recorded runs, or show one with -id\n")
	fmt.Fprintf(w, "\nRun 'tradelab <command> -h' for command options.\n")
}

func main() {
	flag.Usage = func() { usage(os.Stderr) }

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches args to a command, writing command output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	cmd, rest := args[0], args[1:]

	if cmd == "version" {
		fmt.Fprintf(out, "tradelab %s\n", version)
		return nil
	}

	a, err := newApp(out)
	if err != nil {
		return err
	}
	defer a.close()

	switch cmd {
	case "strategies":
		return a.strategies()
	case "ingest-history":
		return a.ingestHistory(ctx, rest)
	case "show-latest-prices":
		return a.showLatestPrices(ctx, rest)
	case "backtest":
		return a.backtest(ctx, rest)
	case "backtest-dry-run":
		return a.backtestDryRun(ctx, rest)
	case "runs":
		return a.runs(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
