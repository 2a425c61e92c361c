package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flashbots/poplar/idpf"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Bits)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bits: 16\nthreshold: 5\nxof: fixedkeyaes128\n"), 0o600))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 16, cfg.Bits)
	require.Equal(t, uint64(5), cfg.Threshold)
	require.Equal(t, "fixedkeyaes128", cfg.Xof)
	require.Equal(t, 1024, cfg.MaxPrefixes)
	require.NoError(t, cfg.Validate())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestReadMeasurements(t *testing.T) {
	ms, err := ReadMeasurements(strings.NewReader("ab\n\nc\r\nxyz\n"), 24)
	require.NoError(t, err)
	require.Len(t, ms, 3)
	require.True(t, ms[0].Equal(idpf.FromBytes([]byte{'a', 'b', 0})))
	require.Equal(t, "c", FormatMeasurement(ms[1]))
	require.Equal(t, "xyz", FormatMeasurement(ms[2]))

	_, err = ReadMeasurements(strings.NewReader("toolong\n"), 16)
	require.ErrorContains(t, err, "line 1")

	_, err = ReadMeasurements(strings.NewReader("a\n"), 12)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, true, "warn")
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "n", 3)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(&buf, false, "loud")
	require.Error(t, err)
}

func TestNewRandomSource(t *testing.T) {
	r, err := NewRandomSource("")
	require.NoError(t, err)
	require.Nil(t, r)

	a, err := NewRandomSource("00ff")
	require.NoError(t, err)
	b, err := NewRandomSource("00ff")
	require.NoError(t, err)
	bufA, bufB := make([]byte, 64), make([]byte, 64)
	_, _ = a.Read(bufA)
	_, _ = b.Read(bufB)
	require.Equal(t, bufA, bufB)

	_, err = NewRandomSource("zz")
	require.Error(t, err)
}
