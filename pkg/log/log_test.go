package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	for _, name := range []string{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal} {
		_, err := ParseLevel(name)
		require.NoError(t, err, name)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestWriterOutput(t *testing.T) {
	prev := getLogger()
	defer setLogger(prev)

	var buf bytes.Buffer
	require.NoError(t, InitWithWriter(LogLevelInfo, &buf))
	require.Equal(t, LogLevelInfo, Level())

	Debugw("hidden", "k", 1)
	Infow("proof submitted", "tx", "0xabc")
	Errorw(errors.New("boom"), "submission failed")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "proof submitted")
	require.Contains(t, out, "tx=0xabc")
	require.Contains(t, out, "boom")
}

func TestInitFileOutput(t *testing.T) {
	prev := getLogger()
	defer setLogger(prev)

	path := filepath.Join(t.TempDir(), "zkpoe.log")
	Init(LogLevelDebug, path)
	require.Equal(t, LogLevelDebug, Level())
	Infow("session saved", "session", "abc")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "logger construction succeeded")
	require.Contains(t, string(data), "session saved")

	Init(LogLevelFatal, "stderr")
	require.Equal(t, LogLevelFatal, Level())
}
