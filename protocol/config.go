package protocol

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/flashbots/poplar/crypto"
	"github.com/flashbots/poplar/poplar1"
)

var (
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid heavy hitters configuration")

	// ErrTooManyPrefixes is returned when the surviving candidates at a level
	// exceed MaxPrefixes.
	ErrTooManyPrefixes = errors.New("too many candidate prefixes")
)

// HeavyHittersConfig provides configuration parameters for a heavy-hitters run.
type HeavyHittersConfig struct {
	// Bits is the length of every measurement.
	Bits int `json:"bits" yaml:"bits"`

	// Threshold is the minimum count for a prefix to survive to the next level.
	Threshold uint64 `json:"threshold" yaml:"threshold"`

	// Xof names the XOF: "shake128" or "fixedkeyaes128".
	Xof string `json:"xof" yaml:"xof"`

	// MaxPrefixes caps the candidate set per level. Zero means no cap.
	MaxPrefixes int `json:"max_prefixes" yaml:"max_prefixes"`

	// Workers bounds the number of reports prepared concurrently per aggregator.
	Workers int `json:"workers" yaml:"workers"`

	// Log is the structured logger for service operations.
	Log *slog.Logger `json:"-" yaml:"-"`

	// Rand supplies nonces, shard randomness and the verify key. Defaults to crypto/rand.
	Rand io.Reader `json:"-" yaml:"-"`
}

// DefaultHeavyHittersConfig returns a configuration for byte-sized measurements.
func DefaultHeavyHittersConfig() *HeavyHittersConfig {
	return &HeavyHittersConfig{
		Bits:        8,
		Threshold:   2,
		Xof:         crypto.XofShake128.Name(),
		MaxPrefixes: 1024,
		Workers:     4,
	}
}

// Validate checks the configuration.
func (c *HeavyHittersConfig) Validate() error {
	if c.Bits < 1 || c.Bits > poplar1.MaxBits {
		return fmt.Errorf("%w: bits must be in [1, %d], got %d", ErrInvalidConfig, poplar1.MaxBits, c.Bits)
	}
	if c.Threshold == 0 {
		return fmt.Errorf("%w: threshold must be positive", ErrInvalidConfig)
	}
	if _, err := crypto.XofByName(c.Xof); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxPrefixes < 0 {
		return fmt.Errorf("%w: max_prefixes must not be negative", ErrInvalidConfig)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Vdaf builds the Poplar1 instance the configuration describes.
func (c *HeavyHittersConfig) Vdaf() (*poplar1.Poplar1, error) {
	xof, err := crypto.XofByName(c.Xof)
	if err != nil {
		return nil, err
	}
	return poplar1.New(c.Bits, xof)
}

func (c *HeavyHittersConfig) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

func (c *HeavyHittersConfig) workers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}
