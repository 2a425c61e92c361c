// Package common provides shared utilities for the heavy-hitters CLI:
//
//   - YAML configuration loading on top of protocol defaults
//   - slog handler construction from command-line options
//   - Reproducible randomness from a hex seed
//   - Measurement file parsing
package common

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/idpf"
	"github.com/flashbots/poplar/protocol"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file. Fields missing from the file keep
// their protocol defaults.
func LoadConfig(path string) (*protocol.HeavyHittersConfig, error) {
	cfg := protocol.DefaultHeavyHittersConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds a text or JSON logger writing to w at the named level.
func NewLogger(w io.Writer, json bool, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// NewRandomSource returns a reproducible stream for a hex seed, or nil when the
// seed is empty so that callers fall back to crypto/rand.
func NewRandomSource(seedHex string) (io.Reader, error) {
	if seedHex == "" {
		return nil, nil
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex seed: %w", err)
	}
	return crypto.NewSeededReader(seed, "heavyhitters cli"), nil
}

// ReadMeasurements parses one measurement per line. Each line is taken as raw
// bytes and right-padded with zeros to bits/8 bytes. Empty lines are skipped.
func ReadMeasurements(r io.Reader, bits int) ([]idpf.Input, error) {
	if bits%8 != 0 {
		return nil, fmt.Errorf("bits must be a multiple of 8 for byte measurements, got %d", bits)
	}
	size := bits / 8

	var res []idpf.Input
	scanner := bufio.NewScanner(r)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if len(text) > size {
			return nil, fmt.Errorf("line %d: measurement %q longer than %d bytes", line, text, size)
		}
		buf := make([]byte, size)
		copy(buf, text)
		res = append(res, idpf.FromBytes(buf))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read measurements: %w", err)
	}
	return res, nil
}

// FormatMeasurement renders a byte measurement for output, dropping the zero padding.
func FormatMeasurement(in idpf.Input) string {
	if in.Len()%8 != 0 {
		return in.String()
	}
	return strings.TrimRight(string(in.Bytes()), "\x00")
}
