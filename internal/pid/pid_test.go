package pid

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/speedctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Write(dir))
	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, Remove(dir))
	_, err = os.Stat(Path(dir))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, Remove(dir), "removing a missing file is fine")
}

func TestWriteRefusesLiveProcess(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := Write(dir)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	tests := map[string]string{
		"dead process": "2147483640",
		"garbage":      "not-a-pid",
		"empty":        "",
		"own pid":      strconv.Itoa(os.Getpid()),
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(Path(dir), []byte(content), 0o600))

			require.NoError(t, Write(dir))
			data, err := os.ReadFile(Path(dir))
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
		})
	}
}
