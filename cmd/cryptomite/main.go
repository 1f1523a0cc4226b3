// Command cryptomite runs extractors, computes their parameters and manages
// documentation search indexes from the command line.
//
// Usage:
//
//	cryptomite extract  -extractor circulant -n 100 -m 90 -input1 0101... -input2 1100...
//	cryptomite params   -extractor toeplitz -n1 1000 -k1 800 -n2 2000 -k2 1800 -error -32
//	cryptomite suggest  -n 1000000 [-exchangeable] [-efficient]
//	cryptomite primes   -near 1000
//	cryptomite submit   -config configs/development.yaml -extractor dodis ...
//	cryptomite index    <decode|validate|stats|lookup|build|diff|copy> ...
//
// Results go to stdout; logs go to stderr.
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

	"github.com/joho/godotenv"

	"github.com/cryptomite-go/cryptomite/pkg/logger"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout io.Writer) error
}

var commands = []command{
	{"extract", "run an extractor over two bit strings", runExtract},
	{"params", "compute extractor parameters for two sources", runParams},
	{"suggest", "recommend an extractor for an input length", runSuggest},
	{"primes", "find primes with primitive root 2 near a length", runPrimes},
	{"submit", "publish an extraction job to Kafka", runSubmit},
	{"index", "decode, validate, query, build and diff search indexes", runIndex},
}

func main() {
	_ = godotenv.Load()
	logger.SetupWriter(os.Stderr, os.Getenv("CM_LOG_LEVEL"), "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "cryptomite:", err)
		}
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(stderr)
		return flag.ErrHelp
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, args[1:], stdout)
		}
	}
	usage(stderr)
	return usageError{fmt.Errorf("unknown command %q", args[0])}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: cryptomite <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
}

// usageError marks mistakes in the command line itself.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func exitCode(err error) int {
	var u usageError
	if errors.Is(err, flag.ErrHelp) || errors.As(err, &u) {
		return 2
	}
	return 1
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{err}
	}
	return nil
}
