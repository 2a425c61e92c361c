package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flashbots/poplar/protocol"
	"github.com/flashbots/poplar/testutil"
	"github.com/stretchr/testify/require"
)

func TestRunPrintsHeavyHitters(t *testing.T) {
	input := strings.Join([]string{"go", "rs", "go", "py", "go", "rs", "c", "c", "zig"}, "\n")
	path := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))

	cfg := protocol.DefaultHeavyHittersConfig()
	cfg.Bits = 24
	cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Rand = testutil.DeterministicReader([]byte("cli"), "run")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, path, &out))
	require.Equal(t, "c\t2\ngo\t3\nrs\t2\n", out.String())
}

func TestRunMissingInput(t *testing.T) {
	cfg := protocol.DefaultHeavyHittersConfig()
	cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	require.Error(t, run(context.Background(), cfg, filepath.Join(t.TempDir(), "none"), io.Discard))
}
