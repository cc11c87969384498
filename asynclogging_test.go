package tcpreactor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsyncLoggingLiveness(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "test")
	a := NewAsyncLogging(base, defaultLogRollSize, 20*time.Millisecond)
	a.Start()
	defer a.Stop()

	_, err := a.Write([]byte("hello world\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logFileName(base))
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestAsyncLoggingRollProducesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "roll")
	activeFile := logFileName(base)
	require.NoError(t, os.WriteFile(activeFile, []byte("old content"), 0644))

	rollLogFile(base, activeFile)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotEqual(t, "roll.log", entries[0].Name())
	require.Contains(t, entries[0].Name(), "roll.")
}
