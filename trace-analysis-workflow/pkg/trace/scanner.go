// =============================================================================
// pkg/trace/scanner.go - Trace File Line Reader
// =============================================================================
//
// OpenLineReader hides how the bytes arrive:
//
//	- gzip-compressed traces (magic 1f 8b) stream through klauspost gzip
//	- zstd-compressed traces (magic 28 b5 2f fd) stream through zstd
//	- plain files are memory-mapped read-only with MADV_SEQUENTIAL;
//	  if mmap fails (or the file is empty) plain reads take over
//
// Lines are delivered with trailing CR/LF stripped, so DOS-format traces
// parse identically to Unix ones.
//
// The default mode uses bufio.Scanner with a 4 MiB line cap, which is
// plenty for real traces. A line beyond the cap surfaces as
// bufio.ErrTooLong; the ingest driver then retries the whole pass once
// in raw mode, where lines of any length are assembled with buffered
// reads.
//
// =============================================================================

package trace

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	scanInitialBuf = 256 * 1024
	scanMaxBuf     = 4 * 1024 * 1024
)

// LineReader delivers trace lines one at a time.
type LineReader struct {
	path    string
	scanner *bufio.Scanner
	reader  *bufio.Reader
	lineNo  uint32
	closers []func() error
}

// OpenLineReader opens a trace file for line-at-a-time reading. rawMode
// selects the unlimited-line-length fallback strategy.
func OpenLineReader(path string, rawMode bool) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open trace file %s", path)
	}

	lr := &LineReader{path: path}
	lr.closers = append(lr.closers, f.Close)

	var magic [4]byte
	n, _ := f.ReadAt(magic[:], 0)

	var src io.Reader
	switch {
	case n >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gz, gerr := gzip.NewReader(f)
		if gerr != nil {
			lr.Close()
			return nil, errors.Wrapf(gerr, "failed to open gzip trace %s", path)
		}
		lr.closers = append(lr.closers, gz.Close)
		src = gz

	case n >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		dec, zerr := zstd.NewReader(f)
		if zerr != nil {
			lr.Close()
			return nil, errors.Wrapf(zerr, "failed to open zstd trace %s", path)
		}
		lr.closers = append(lr.closers, func() error { dec.Close(); return nil })
		src = dec

	default:
		src = f
		if st, serr := f.Stat(); serr == nil && st.Size() > 0 {
			data, merr := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
			if merr == nil {
				unix.Madvise(data, unix.MADV_SEQUENTIAL)
				lr.closers = append(lr.closers, func() error { return unix.Munmap(data) })
				src = bytes.NewReader(data)
			}
		}
	}

	if rawMode {
		lr.reader = bufio.NewReaderSize(src, scanInitialBuf)
	} else {
		sc := bufio.NewScanner(src)
		sc.Buffer(make([]byte, scanInitialBuf), scanMaxBuf)
		lr.scanner = sc
	}
	return lr, nil
}

// Next returns the next line with line endings stripped. ok is false at
// end of input.
func (r *LineReader) Next() (line string, ok bool, err error) {
	if r.scanner != nil {
		if r.scanner.Scan() {
			r.lineNo++
			text := r.scanner.Text()
			if strings.HasSuffix(text, "\r") {
				text = text[:len(text)-1]
			}
			return text, true, nil
		}
		if serr := r.scanner.Err(); serr != nil {
			return "", false, errors.Wrapf(serr, "failed reading trace %s at line %d", r.path, r.lineNo+1)
		}
		return "", false, nil
	}

	raw, rerr := r.reader.ReadString('\n')
	if rerr != nil && rerr != io.EOF {
		return "", false, errors.Wrapf(rerr, "failed reading trace %s at line %d", r.path, r.lineNo+1)
	}
	if len(raw) == 0 {
		return "", false, nil
	}
	r.lineNo++
	return strings.TrimRight(raw, "\r\n"), true, nil
}

// LineNo returns the number of lines delivered so far.
func (r *LineReader) LineNo() uint32 {
	return r.lineNo
}

// Close releases the file, decompressor and mapping.
func (r *LineReader) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// IsLineTooLong reports whether err is the scanner's line-length error,
// the signal to retry in raw mode.
func IsLineTooLong(err error) bool {
	return errors.Is(err, bufio.ErrTooLong)
}

// ContainsTraceMarker scans the file for at least one PARSING IN CURSOR
// line. Files without one are not usable SQL traces (event 10046 with
// the sql_trace component enabled). rawNeeded is set when the scan hit
// an over-long line and had to fall back to raw reading; the main pass
// should then open the file in raw mode too.
func ContainsTraceMarker(path string) (found bool, rawNeeded bool, err error) {
	found, err = scanForMarker(path, false)
	if err != nil && IsLineTooLong(err) {
		found, err = scanForMarker(path, true)
		return found, true, err
	}
	return found, false, err
}

func scanForMarker(path string, rawMode bool) (bool, error) {
	lr, err := OpenLineReader(path, rawMode)
	if err != nil {
		return false, err
	}
	defer lr.Close()
	for {
		line, ok, err := lr.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if strings.HasPrefix(line, "PARSING IN CURSOR") {
			return true, nil
		}
	}
}
