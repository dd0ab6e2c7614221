package table

import (
	"bufio"
	"bytes"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// Sorter orders the lines of a channel file by their first tab-delimited field
// using byte-wise comparison. Lines sharing a key keep their input order.
// A missing src is not an error: dst is simply not produced.
type Sorter interface {
	Sort(ctx context.Context, src, dst string) error
}

// SortChannel sorts channel inside dir into "<channel>.sort" and returns that path.
func SortChannel(ctx context.Context, s Sorter, dir, channel string) (string, error) {
	if err := ValidateChannel(channel); err != nil {
		return "", err
	}
	src := filepath.Join(dir, channel)
	dst := src + ".sort"
	if err := s.Sort(ctx, src, dst); err != nil {
		return "", fmt.Errorf("sort channel %s: %w", channel, err)
	}
	return dst, nil
}

// sourceMissing removes any stale dst when src does not exist so readers of
// dst observe an empty table.
func sourceMissing(src, dst string) (bool, error) {
	if _, err := os.Stat(src); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return true, rmErr
		}
		return true, nil
	}
	return false, nil
}

// =============================================================================
// EXTERNAL SORT UTILITY
// =============================================================================

// ExecSorter shells out to a POSIX sort binary running in the C locale.
type ExecSorter struct {
	// Command defaults to "sort".
	Command string
	// TempDir is passed to sort -T when set.
	TempDir string
}

func (s ExecSorter) Sort(ctx context.Context, src, dst string) error {
	missing, err := sourceMissing(src, dst)
	if err != nil || missing {
		return err
	}
	command := s.Command
	if command == "" {
		command = "sort"
	}
	args := []string{"-s", "-t", "\t", "-k1,1"}
	if s.TempDir != "" {
		args = append(args, "-T", s.TempDir)
	}
	args = append(args, src)

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	cmd.Stdout = out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = out.Close()
		return fmt.Errorf("%s %s: %w: %s", command, src, err, strings.TrimSpace(stderr.String()))
	}
	return out.Close()
}

// =============================================================================
// IN-PROCESS EXTERNAL MERGE SORT
// =============================================================================

const minMemoryBudget = 16 << 20

// DefaultMemoryBudget is an eighth of physical memory, never below 16 MiB.
func DefaultMemoryBudget() int64 {
	budget := int64(memory.TotalMemory() / 8)
	if budget < minMemoryBudget {
		budget = minMemoryBudget
	}
	return budget
}

// MergeSorter sorts files larger than its memory budget by spilling stably
// sorted runs to disk and merging them with a heap.
type MergeSorter struct {
	// MemoryBudget bounds the bytes of line data held per run.
	MemoryBudget int64
	// TempDir holds spilled runs; defaults to the directory of dst.
	TempDir string
	Logger  logrus.FieldLogger
}

// NewMergeSorter returns a MergeSorter with the given budget, or the default
// budget when budget is not positive.
func NewMergeSorter(budget int64, logger logrus.FieldLogger) *MergeSorter {
	if budget <= 0 {
		budget = DefaultMemoryBudget()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MergeSorter{MemoryBudget: budget, Logger: logger}
}

type sortLine struct {
	key  string
	text string
}

func lineKey(text string) string {
	if idx := strings.IndexByte(text, '\t'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func (s *MergeSorter) Sort(ctx context.Context, src, dst string) error {
	missing, err := sourceMissing(src, dst)
	if err != nil || missing {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	budget := s.MemoryBudget
	if budget <= 0 {
		budget = DefaultMemoryBudget()
	}
	tmpDir := s.TempDir
	if tmpDir == "" {
		tmpDir = filepath.Dir(dst)
	}

	reader := bufio.NewReaderSize(in, 64*1024)
	var runs []string
	defer func() {
		for _, run := range runs {
			_ = os.Remove(run)
		}
	}()

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines, size, eof, err := readRun(reader, budget)
		if err != nil {
			return fmt.Errorf("read %s: %w", src, err)
		}
		total += size
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].key < lines[j].key })

		if eof && len(runs) == 0 {
			// everything fit in memory
			return writeLines(dst, lines)
		}
		if len(lines) > 0 {
			f, err := os.CreateTemp(tmpDir, "sortrun-*")
			if err != nil {
				return fmt.Errorf("create sort run: %w", err)
			}
			runs = append(runs, f.Name())
			_ = f.Close()
			if err := writeLines(f.Name(), lines); err != nil {
				return err
			}
		}
		if eof {
			break
		}
	}

	s.logger().WithFields(logrus.Fields{
		"file":  filepath.Base(src),
		"runs":  len(runs),
		"bytes": humanize.Bytes(uint64(total)),
	}).Debug("merging sort runs")
	return mergeRuns(ctx, runs, dst)
}

func (s *MergeSorter) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

func readRun(r *bufio.Reader, budget int64) ([]sortLine, int64, bool, error) {
	var lines []sortLine
	var size int64
	for size < budget {
		text, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, false, err
		}
		text = strings.TrimRight(text, "\r\n")
		if text != "" {
			lines = append(lines, sortLine{key: lineKey(text), text: text})
			size += int64(len(text)) + 1
		}
		if errors.Is(err, io.EOF) {
			return lines, size, true, nil
		}
	}
	// budget reached exactly at a line boundary; peek to detect EOF
	if _, err := r.Peek(1); errors.Is(err, io.EOF) {
		return lines, size, true, nil
	}
	return lines, size, false, nil
}

func writeLines(path string, lines []sortLine) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 64*1024)
	for _, l := range lines {
		if _, err := w.WriteString(l.text); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// runCursor is the head line of one spilled run.
type runCursor struct {
	line   sortLine
	run    int
	reader *bufio.Reader
}

// runHeap orders cursors by key, then by run index. Runs are cut from the
// input in order, so the tie-break keeps equal keys in input order.
type runHeap []*runCursor

func (h runHeap) Len() int { return len(h) }
func (h runHeap) Less(i, j int) bool {
	if h[i].line.key != h[j].line.key {
		return h[i].line.key < h[j].line.key
	}
	return h[i].run < h[j].run
}
func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x any)   { *h = append(*h, x.(*runCursor)) }
func (h *runHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (c *runCursor) advance() (bool, error) {
	for {
		text, err := c.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		text = strings.TrimRight(text, "\r\n")
		if text != "" {
			c.line = sortLine{key: lineKey(text), text: text}
			return true, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
	}
}

func mergeRuns(ctx context.Context, runs []string, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	w := bufio.NewWriterSize(out, 64*1024)

	files := make([]*os.File, 0, len(runs))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	h := &runHeap{}
	for i, run := range runs {
		f, err := os.Open(run)
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("open sort run: %w", err)
		}
		files = append(files, f)
		c := &runCursor{run: i, reader: bufio.NewReaderSize(f, 32*1024)}
		ok, err := c.advance()
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("read sort run: %w", err)
		}
		if ok {
			*h = append(*h, c)
		}
	}
	heap.Init(h)

	for n := 0; h.Len() > 0; n++ {
		if n%65536 == 0 {
			if err := ctx.Err(); err != nil {
				_ = out.Close()
				return err
			}
		}
		c := heap.Pop(h).(*runCursor)
		if _, err := w.WriteString(c.line.text); err != nil {
			_ = out.Close()
			return fmt.Errorf("write %s: %w", dst, err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = out.Close()
			return fmt.Errorf("write %s: %w", dst, err)
		}
		ok, err := c.advance()
		if err != nil {
			_ = out.Close()
			return fmt.Errorf("read sort run: %w", err)
		}
		if ok {
			heap.Push(h, c)
		}
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return fmt.Errorf("flush %s: %w", dst, err)
	}
	return out.Close()
}
