// Command heavyhitters runs the Poplar1 heavy-hitters protocol in process over a
// file of measurements and prints every value reported at least threshold times.
//
// # Input
//
// One measurement per line, taken as raw bytes and right-padded with zeros to
// bits/8 bytes. Use --input=- to read from stdin.
//
// # Configuration File
//
//	bits: 16
//	threshold: 10
//	xof: "shake128"          # or "fixedkeyaes128"
//	max_prefixes: 1024
//	workers: 8
//
// # Usage
//
//	go run ./cmd/heavyhitters --input=urls.txt --bits=64 --threshold=5
//	go run ./cmd/heavyhitters --config=hh.yaml --input=- --seed=00ff --log-json
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/poplar/cmd/common"
	"github.com/flashbots/poplar/protocol"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		inputPath   = flag.String("input", "-", "Measurement file, one per line (- for stdin)")
		bits        = flag.Int("bits", 8, "Measurement length in bits (multiple of 8)")
		threshold   = flag.Uint64("threshold", 2, "Minimum count of a heavy hitter")
		xof         = flag.String("xof", "shake128", "XOF: shake128 or fixedkeyaes128")
		maxPrefixes = flag.Int("max-prefixes", 1024, "Candidate prefixes allowed per level (0 for no limit)")
		workers     = flag.Int("workers", 4, "Reports prepared concurrently per aggregator")
		seedHex     = flag.String("seed", "", "Hex seed for a reproducible run (crypto/rand if empty)")
		logJSON     = flag.Bool("log-json", false, "Log as JSON")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn or error")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file
	if isFlagSet("bits") {
		cfg.Bits = *bits
	}
	if isFlagSet("threshold") {
		cfg.Threshold = *threshold
	}
	if isFlagSet("xof") {
		cfg.Xof = *xof
	}
	if isFlagSet("max-prefixes") {
		cfg.MaxPrefixes = *maxPrefixes
	}
	if isFlagSet("workers") {
		cfg.Workers = *workers
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Log, err = common.NewLogger(os.Stderr, *logJSON, *logLevel); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Rand, err = common.NewRandomSource(*seedHex); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *inputPath, os.Stdout); err != nil {
		if ctx.Err() != nil {
			fmt.Println("Interrupted")
			os.Exit(1)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *protocol.HeavyHittersConfig, inputPath string, out io.Writer) error {
	var in io.Reader = os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	measurements, err := common.ReadMeasurements(in, cfg.Bits)
	if err != nil {
		return err
	}
	cfg.Log.Info("measurements loaded", "count", len(measurements), "bits", cfg.Bits, "xof", cfg.Xof)

	res, err := protocol.RunHeavyHitters(ctx, cfg, measurements)
	if err != nil {
		return err
	}
	for _, hh := range res.HeavyHitters {
		fmt.Fprintf(out, "%s\t%d\n", common.FormatMeasurement(hh.Prefix), hh.Count)
	}
	return nil
}
