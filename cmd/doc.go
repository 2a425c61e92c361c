// Package cmd provides CLI commands for the Poplar1 heavy-hitters protocol.
//
// # Commands
//
// heavyhitters: Runs the client, both aggregators and the collector in one
// process over a file of byte-string measurements and prints every value that
// occurs at least threshold times, one "value<TAB>count" line each.
//
//	go run ./cmd/heavyhitters --input=words.txt --bits=32 --threshold=3
//	cat urls.txt | go run ./cmd/heavyhitters --bits=256 --xof=fixedkeyaes128
//
// # Configuration
//
// The command supports a YAML configuration file via the --config flag.
// Command-line flags that are set explicitly override config file values.
//
//	bits: 32
//	threshold: 3
//	xof: "shake128"
//	max_prefixes: 1024
//	workers: 8
//
// Logs go to stderr: text by default, JSON with --log-json, filtered by
// --log-level. A hex --seed makes the whole run reproducible, including the
// verify key and every report's randomness.
package cmd
