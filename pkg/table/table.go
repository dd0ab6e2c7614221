// Package table implements the two-column channel format shared by scanners and
// builders: one record per line, the key, a tab, then the JSON encoded value.
package table

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is a single key/value line of a channel file.
type Record struct {
	Key   string
	Value json.RawMessage
}

// Decode unmarshals the record value into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Value, v); err != nil {
		return fmt.Errorf("decode value for key %q: %w", r.Key, err)
	}
	return nil
}

// String returns the value as text. JSON strings are unquoted, anything else
// is returned as its raw JSON text.
func (r Record) String() string {
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return s
	}
	return string(r.Value)
}

// Iterator is a pull-style cursor over a sequence of values.
type Iterator[T any] interface {
	// Next advances to the next value. Returns false when done or on error.
	Next() bool

	// Value returns the current value. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// Table names a channel file on disk. Every call to Open starts a fresh pass,
// so a Table can be iterated any number of times.
type Table struct {
	Path string
}

// Open returns a Reader positioned before the first record.
func (t Table) Open() (*Reader, error) {
	return OpenReader(t.Path)
}

// Reader streams records from a channel file.
type Reader struct {
	path string
	file *os.File
	buf  *bufio.Reader
	cur  Record
	line int
	err  error
	eof  bool
	done bool
}

var _ Iterator[Record] = (*Reader)(nil)

// OpenReader opens path for reading. A file that does not exist yields an
// empty sequence rather than an error.
func OpenReader(path string) (*Reader, error) {
	r := &Reader{path: path}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.done = true
			return r, nil
		}
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	r.file = f
	r.buf = bufio.NewReaderSize(f, 64*1024)
	return r, nil
}

func (r *Reader) Next() bool {
	for !r.done {
		if r.eof {
			r.done = true
			break
		}
		line, err := r.buf.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = fmt.Errorf("read %s: %w", r.path, err)
				r.done = true
				break
			}
			r.eof = true
		}
		r.line++
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		rec, perr := parseLine(line)
		if perr != nil {
			r.err = fmt.Errorf("%s:%d: %w", r.path, r.line, perr)
			r.done = true
			break
		}
		r.cur = rec
		return true
	}
	return false
}

func (r *Reader) Value() Record { return r.cur }

func (r *Reader) Err() error { return r.err }

func (r *Reader) Close() error {
	r.done = true
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func parseLine(line string) (Record, error) {
	idx := strings.IndexByte(line, '\t')
	if idx < 0 {
		return Record{}, fmt.Errorf("malformed record: missing value column")
	}
	raw := line[idx+1:]
	if !json.Valid([]byte(raw)) {
		return Record{}, fmt.Errorf("malformed record %q: value is not JSON", line[:idx])
	}
	return Record{Key: line[:idx], Value: json.RawMessage(raw)}, nil
}

// ForEach calls fn for every record of the table at path, stopping at the
// first error returned by fn or by the reader.
func ForEach(path string, fn func(Record) error) error {
	r, err := OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for r.Next() {
		if err := fn(r.Value()); err != nil {
			return err
		}
	}
	return r.Err()
}

// ReadAll loads every record of a small table into memory.
func ReadAll(path string) ([]Record, error) {
	var out []Record
	err := ForEach(path, func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}
