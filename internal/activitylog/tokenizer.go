package activitylog

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/gzip"
)

// magic is the 4-byte header every decompressed .xcactivitylog starts with.
const magic = "SLF0"

// maxPayloadLength bounds a single String/Class token's declared byte
// length. Real activity logs never approach this; it exists only to fail a
// corrupt or hostile file instead of allocating unbounded memory.
const maxPayloadLength = 256 << 20 // 256 MiB

// sentinel bytes, one per Kind (see spec §4.A).
const (
	sentinelString   = '"'
	sentinelNull     = '-'
	sentinelInteger  = '#'
	sentinelDouble   = '^'
	sentinelArray    = '('
	sentinelClass    = '%'
	sentinelInstance = '@'
)

func kindForSentinel(b byte) (Kind, bool) {
	switch b {
	case sentinelString:
		return KindString, true
	case sentinelNull:
		return KindNull, true
	case sentinelInteger:
		return KindInteger, true
	case sentinelDouble:
		return KindDouble, true
	case sentinelArray:
		return KindArray, true
	case sentinelClass:
		return KindClass, true
	case sentinelInstance:
		return KindInstance, true
	default:
		return 0, false
	}
}

// Tokenizer pulls tokens one at a time out of an .xcactivitylog stream. It
// is single-pass and not restartable; create a new one per file.
type Tokenizer struct {
	src io.Reader
	buf []byte
	eof bool
}

// New opens an .xcactivitylog stream: r must yield the raw gzip-compressed
// bytes of the file. New decompresses on the fly and validates the leading
// "SLF0" magic before returning.
func New(r io.Reader) (*Tokenizer, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening gzip stream: %v", ErrInvalidFormat, err)
	}

	t := &Tokenizer{src: bufio.NewReaderSize(gz, 32*1024)}

	header := make([]byte, len(magic))
	n, err := io.ReadFull(t.src, header)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, fmt.Errorf("%w: empty activity log", ErrTruncatedStream)
		}
		return nil, fmt.Errorf("%w: reading header: %v", ErrTruncatedStream, err)
	}
	if string(header) != magic {
		return nil, fmt.Errorf("%w: expected %q header, got %q", ErrInvalidFormat, magic, header)
	}
	return t, nil
}

// Next returns the next token, or io.EOF once the stream (and any trailing
// garbage with no pending token) is exhausted.
func (t *Tokenizer) Next() (Token, error) {
	for {
		idx := indexSentinel(t.buf)
		if idx < 0 {
			if t.eof {
				// Trailing bytes with no sentinel: terminate gracefully per
				// spec §4.A edge case (3).
				return Token{}, io.EOF
			}
			if err := t.fill(); err != nil {
				return Token{}, err
			}
			continue
		}

		kind, _ := kindForSentinel(t.buf[idx])
		switch kind {
		case KindString, KindClass:
			return t.readStringLike(idx, kind)
		case KindNull:
			t.buf = t.buf[idx+1:]
			return Token{Kind: KindNull}, nil
		case KindDouble:
			return t.readDouble(idx)
		default: // Integer, Array, Instance
			return t.readDecimal(idx, kind)
		}
	}
}

// fill reads more bytes from the decompressor into buf. It is a no-op (and
// records eof) once the underlying reader is exhausted.
func (t *Tokenizer) fill() error {
	chunk := make([]byte, 32*1024)
	n, err := t.src.Read(chunk)
	if n > 0 {
		t.buf = append(t.buf, chunk[:n]...)
	}
	if err != nil {
		if err == io.EOF {
			t.eof = true
			return nil
		}
		return fmt.Errorf("reading activity log stream: %w", err)
	}
	return nil
}

func (t *Tokenizer) readDecimal(idx int, kind Kind) (Token, error) {
	v, err := parseDecimal(t.buf[:idx])
	if err != nil {
		return Token{}, fmt.Errorf("%w: %s payload: %v", ErrInvalidFormat, kind, err)
	}
	t.buf = t.buf[idx+1:]
	return Token{Kind: kind, Int: v}, nil
}

func (t *Tokenizer) readDouble(idx int) (Token, error) {
	raw, err := hex.DecodeString(string(t.buf[:idx]))
	if err != nil || len(raw) != 8 {
		return Token{}, fmt.Errorf("%w: double payload %q", ErrInvalidFormat, t.buf[:idx])
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(raw))
	t.buf = t.buf[idx+1:]
	return Token{Kind: KindDouble, Float: v}, nil
}

// readStringLike handles both String and Class tokens: the sentinel is
// followed by a decimal byte length, then exactly that many raw bytes
// (spec §4.A edge cases 1 and 2 — straddling reads, length exceeding the
// buffered window).
func (t *Tokenizer) readStringLike(idx int, kind Kind) (Token, error) {
	length, err := parseDecimal(t.buf[:idx])
	if err != nil {
		return Token{}, fmt.Errorf("%w: %s length prefix: %v", ErrInvalidFormat, kind, err)
	}
	if length < 0 || length > maxPayloadLength {
		return Token{}, fmt.Errorf("%w: %s length %d out of range", ErrInvalidFormat, kind, length)
	}

	need := idx + 1 + int(length)
	for int64(len(t.buf)) < int64(need) {
		if t.eof {
			return Token{}, fmt.Errorf("%w: %s payload wants %d bytes, got %d", ErrTruncatedStream, kind, length, len(t.buf)-idx-1)
		}
		if err := t.fill(); err != nil {
			return Token{}, err
		}
	}

	s := string(t.buf[idx+1 : need])
	t.buf = t.buf[need:]
	return Token{Kind: kind, Str: s}, nil
}

// indexSentinel returns the index of the first sentinel byte in buf, or -1.
func indexSentinel(buf []byte) int {
	for i, b := range buf {
		if _, ok := kindForSentinel(b); ok {
			return i
		}
	}
	return -1
}

func parseDecimal(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty numeric field")
	}
	return strconv.ParseInt(string(b), 10, 64)
}
