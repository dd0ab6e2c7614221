package table

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidChannel is returned for channel names that are not a single path segment.
var ErrInvalidChannel = errors.New("invalid channel name")

// ValidateChannel reports whether name can be used as a channel file name.
func ValidateChannel(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, os.PathSeparator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidChannel, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidChannel, name)
	}
	return nil
}

type port struct {
	file    *os.File
	w       *bufio.Writer
	records int64
}

// Emitter routes records to per-channel files inside a work directory. The
// first Emit on a channel creates (or truncates) its file; later calls append.
// An Emitter is not safe for concurrent use.
type Emitter struct {
	dir   string
	ports map[string]*port
	order []string
}

// NewEmitter returns an Emitter writing into dir, which must already exist.
func NewEmitter(dir string) (*Emitter, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("work dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("work dir %s is not a directory", dir)
	}
	return &Emitter{dir: dir, ports: map[string]*port{}}, nil
}

// Dir returns the work directory.
func (e *Emitter) Dir() string { return e.dir }

// Path returns the backing file of channel.
func (e *Emitter) Path(channel string) string {
	return filepath.Join(e.dir, channel)
}

// Emit appends key TAB json(value) to channel.
func (e *Emitter) Emit(key string, value any, channel string) error {
	if strings.ContainsAny(key, "\t\n\r") {
		return fmt.Errorf("emit %s: key %q contains a tab or newline", channel, key)
	}
	p, err := e.open(channel)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("emit %s: encode value: %w", channel, err)
	}
	if _, err := p.w.WriteString(key); err != nil {
		return fmt.Errorf("emit %s: %w", channel, err)
	}
	if err := p.w.WriteByte('\t'); err != nil {
		return fmt.Errorf("emit %s: %w", channel, err)
	}
	if _, err := p.w.Write(data); err != nil {
		return fmt.Errorf("emit %s: %w", channel, err)
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("emit %s: %w", channel, err)
	}
	p.records++
	return nil
}

func (e *Emitter) open(channel string) (*port, error) {
	if p, ok := e.ports[channel]; ok {
		return p, nil
	}
	if err := ValidateChannel(channel); err != nil {
		return nil, err
	}
	f, err := os.Create(e.Path(channel))
	if err != nil {
		return nil, fmt.Errorf("open channel %s: %w", channel, err)
	}
	p := &port{file: f, w: bufio.NewWriterSize(f, 64*1024)}
	e.ports[channel] = p
	e.order = append(e.order, channel)
	return p, nil
}

// Channels lists the channels opened so far in first-use order.
func (e *Emitter) Channels() []string {
	return append([]string(nil), e.order...)
}

// Counts returns the number of records written per channel.
func (e *Emitter) Counts() map[string]int64 {
	out := make(map[string]int64, len(e.ports))
	for name, p := range e.ports {
		out[name] = p.records
	}
	return out
}

// Close flushes and closes every channel. The Emitter can be reused afterwards;
// reopening a channel truncates it.
func (e *Emitter) Close() error {
	var errs []string
	names := make([]string, 0, len(e.ports))
	for name := range e.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := e.ports[name]
		if err := p.w.Flush(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
		if err := p.file.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	e.ports = map[string]*port{}
	e.order = nil
	if len(errs) > 0 {
		return fmt.Errorf("close channels: %s", strings.Join(errs, "; "))
	}
	return nil
}
