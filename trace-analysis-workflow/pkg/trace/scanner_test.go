package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrace(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func zstdBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	return enc.EncodeAll(data, nil)
}

func readAllLines(t *testing.T, path string, rawMode bool) []string {
	t.Helper()
	lr, err := OpenLineReader(path, rawMode)
	require.NoError(t, err)
	defer lr.Close()

	var lines []string
	for {
		line, ok, err := lr.Next()
		require.NoError(t, err)
		if !ok {
			return lines
		}
		lines = append(lines, line)
	}
}

const tinyTrace = "Trace file ora_1.trc\nPARSING IN CURSOR #1 len=11 dep=0\nselect 1\nEND OF STMT\n"

func TestLineReaderPlainFile(t *testing.T) {
	path := writeTrace(t, "plain.trc", []byte(tinyTrace))
	lines := readAllLines(t, path, false)
	require.Len(t, lines, 4)
	assert.Equal(t, "Trace file ora_1.trc", lines[0])
	assert.Equal(t, "END OF STMT", lines[3])
}

func TestLineReaderStripsDOSLineEndings(t *testing.T) {
	dos := strings.ReplaceAll(tinyTrace, "\n", "\r\n")
	path := writeTrace(t, "dos.trc", []byte(dos))

	for _, rawMode := range []bool{false, true} {
		lines := readAllLines(t, path, rawMode)
		require.Len(t, lines, 4)
		for _, line := range lines {
			assert.NotContains(t, line, "\r")
		}
	}
}

func TestLineReaderGzipInput(t *testing.T) {
	path := writeTrace(t, "gz.trc.gz", gzipBytes(t, []byte(tinyTrace)))
	lines := readAllLines(t, path, false)
	require.Len(t, lines, 4)
	assert.Equal(t, "select 1", lines[2])
}

func TestLineReaderZstdInput(t *testing.T) {
	path := writeTrace(t, "zst.trc.zst", zstdBytes(t, []byte(tinyTrace)))
	lines := readAllLines(t, path, false)
	require.Len(t, lines, 4)
	assert.Equal(t, "select 1", lines[2])
}

func TestLineReaderEmptyFile(t *testing.T) {
	path := writeTrace(t, "empty.trc", nil)
	assert.Empty(t, readAllLines(t, path, false))
	assert.Empty(t, readAllLines(t, path, true))
}

func TestLineReaderRawModeHandlesMissingFinalNewline(t *testing.T) {
	path := writeTrace(t, "nofinal.trc", []byte("line one\nline two"))
	lines := readAllLines(t, path, true)
	assert.Equal(t, []string{"line one", "line two"}, lines)
}

func TestLineReaderOverlongLine(t *testing.T) {
	long := strings.Repeat("x", scanMaxBuf+1)
	path := writeTrace(t, "long.trc", []byte("short\n"+long+"\n"))

	lr, err := OpenLineReader(path, false)
	require.NoError(t, err)
	defer lr.Close()

	_, ok, err := lr.Next()
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = lr.Next()
	require.Error(t, err)
	assert.True(t, IsLineTooLong(err))

	// Raw mode assembles the same line without a length cap.
	lines := readAllLines(t, path, true)
	require.Len(t, lines, 2)
	assert.Len(t, lines[1], scanMaxBuf+1)
}

func TestContainsTraceMarker(t *testing.T) {
	t.Run("marker present", func(t *testing.T) {
		path := writeTrace(t, "ok.trc", []byte(tinyTrace))
		found, rawNeeded, err := ContainsTraceMarker(path)
		require.NoError(t, err)
		assert.True(t, found)
		assert.False(t, rawNeeded)
	})

	t.Run("marker absent", func(t *testing.T) {
		path := writeTrace(t, "alert.log", []byte("Starting ORACLE instance (normal)\nno sql trace content here\n"))
		found, _, err := ContainsTraceMarker(path)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("marker after overlong line needs raw mode", func(t *testing.T) {
		long := strings.Repeat("y", scanMaxBuf+1)
		path := writeTrace(t, "binary.trc", []byte(long+"\nPARSING IN CURSOR #2 len=9 dep=0\n"))
		found, rawNeeded, err := ContainsTraceMarker(path)
		require.NoError(t, err)
		assert.True(t, found)
		assert.True(t, rawNeeded)
	})

	t.Run("nonexistent path", func(t *testing.T) {
		_, _, err := ContainsTraceMarker(filepath.Join(t.TempDir(), "missing.trc"))
		assert.Error(t, err)
	})
}
