package helpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.00 KB", FormatBytes(1024))
	assert.Equal(t, "1.50 MB", FormatBytes(1572864))
	assert.Equal(t, "2.00 GB", FormatBytes(2147483648))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "456µs", FormatDuration(456*time.Microsecond))
	assert.Equal(t, "123.456ms", FormatDuration(123456*time.Microsecond))
	assert.Equal(t, "45.67s", FormatDuration(45670*time.Millisecond))
	assert.Equal(t, "3m 45.67s", FormatDuration(3*time.Minute+45670*time.Millisecond))
	assert.Equal(t, "2h 30m 15s", FormatDuration(2*time.Hour+30*time.Minute+15*time.Second))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0.00", FormatSeconds(0))
	assert.Equal(t, "0.01", FormatSeconds(1), "nonzero activity never displays as zero")
	assert.Equal(t, "0.01", FormatSeconds(9999))
	assert.Equal(t, "1.50", FormatSeconds(1500000))
	assert.Equal(t, "-1.50", FormatSeconds(-1500000))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "999", FormatNumber(999))
	assert.Equal(t, "1,000", FormatNumber(1000))
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "-1,234,567", FormatNumber(-1234567))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "9999", FormatCount(9999))
	assert.Equal(t, "10.0K", FormatCount(10000))
	assert.Equal(t, "2.5M", FormatCount(2500000))
}

func TestPercentOf(t *testing.T) {
	assert.Zero(t, PercentOf(5, 0), "zero whole must not divide")
	assert.InDelta(t, 25.0, PercentOf(1, 4), 0.001)
	assert.InDelta(t, 100.0, PercentOf(7, 7), 0.001)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "12.5%", FormatPercent(12.5, 1))
	assert.Equal(t, "100%", FormatPercent(100, 0))
}

func TestTicksConversions(t *testing.T) {
	assert.InDelta(t, 1.5, TicksToSeconds(1500000), 0.0001)
	assert.Equal(t, 1500*time.Millisecond, TicksToDuration(1500000))
}

func TestGetDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.log"), make([]byte, 100), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.log"), make([]byte, 50), 0o644))
	assert.Equal(t, int64(150), GetDirSize(dir))
}
