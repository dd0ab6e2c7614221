package table

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	em, err := NewEmitter(dir)
	require.NoError(t, err)

	require.NoError(t, em.Emit("T1", "sample_raw_1", "targets"))
	require.NoError(t, em.Emit("probeA", map[string]string{"target": "T1", "Signal": "5"}, "geneExp.probes"))
	require.NoError(t, em.Emit("T2", "sample_raw_1", "targets"))
	assert.Equal(t, []string{"targets", "geneExp.probes"}, em.Channels())
	assert.Equal(t, int64(2), em.Counts()["targets"])
	require.NoError(t, em.Close())

	raw, err := os.ReadFile(filepath.Join(dir, "targets"))
	require.NoError(t, err)
	assert.Equal(t, "T1\t\"sample_raw_1\"\nT2\t\"sample_raw_1\"\n", string(raw))

	recs, err := ReadAll(filepath.Join(dir, "geneExp.probes"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "probeA", recs[0].Key)
	var value map[string]string
	require.NoError(t, recs[0].Decode(&value))
	assert.Equal(t, "5", value["Signal"])
}

func TestEmitterTruncatesOnReopen(t *testing.T) {
	dir := t.TempDir()
	em, err := NewEmitter(dir)
	require.NoError(t, err)
	require.NoError(t, em.Emit("a", "1", "chan"))
	require.NoError(t, em.Close())

	require.NoError(t, em.Emit("b", "2", "chan"))
	require.NoError(t, em.Close())

	recs, err := ReadAll(filepath.Join(dir, "chan"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "b", recs[0].Key)
}

func TestEmitterRejectsBadNames(t *testing.T) {
	em, err := NewEmitter(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		err := em.Emit("k", "v", name)
		assert.ErrorIs(t, err, ErrInvalidChannel, name)
	}
	assert.Error(t, em.Emit("bad\tkey", "v", "chan"))
}

func TestNewEmitterMissingDir(t *testing.T) {
	_, err := NewEmitter(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestReaderMissingFileIsEmpty(t *testing.T) {
	r, err := OpenReader(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	assert.NoError(t, r.Close())
}

func TestReaderRestartableAndNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t")
	require.NoError(t, os.WriteFile(path, []byte("a\t1\n\nb\t{\"x\":\"y\"}"), 0o644))

	tbl := Table{Path: path}
	for pass := 0; pass < 2; pass++ {
		r, err := tbl.Open()
		require.NoError(t, err)
		var keys []string
		for r.Next() {
			keys = append(keys, r.Value().Key)
		}
		require.NoError(t, r.Err())
		require.NoError(t, r.Close())
		assert.Equal(t, []string{"a", "b"}, keys)
	}
}

func TestReaderMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t")
	require.NoError(t, os.WriteFile(path, []byte("a\t1\nbroken\n"), 0o644))
	_, err := ReadAll(path)
	assert.Error(t, err)
}

func TestRecordString(t *testing.T) {
	assert.Equal(t, "x", Record{Value: []byte(`"x"`)}.String())
	assert.Equal(t, `{"a":1}`, Record{Value: []byte(`{"a":1}`)}.String())
}

// =============================================================================
// SORTERS
// =============================================================================

const unsorted = "b\t\"1\"\na\t\"1\"\nb\t\"2\"\nB\t\"1\"\na\t\"2\"\nab\t\"1\"\nb\t\"3\"\n"
const sorted = "B\t\"1\"\na\t\"1\"\na\t\"2\"\nab\t\"1\"\nb\t\"1\"\nb\t\"2\"\nb\t\"3\"\n"

func runSorter(t *testing.T, s Sorter) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chan"), []byte(unsorted), 0o644))
	dst, err := SortChannel(context.Background(), s, dir, "chan")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chan.sort"), dst)
	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, sorted, string(out))
}

func TestMergeSorterInMemory(t *testing.T) {
	runSorter(t, NewMergeSorter(1<<20, nil))
}

func TestMergeSorterSpillsRunsStably(t *testing.T) {
	s := NewMergeSorter(1<<20, nil)
	s.MemoryBudget = 10 // a couple of lines per run
	runSorter(t, s)
}

func TestMergeSorterLargeInputManyRuns(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 500; i++ {
		key := []string{"k3", "k1", "k2"}[i%3]
		b.WriteString(key + "\t" + `"` + strings.Repeat("x", i%7) + `"` + "\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big"), []byte(b.String()), 0o644))

	s := NewMergeSorter(1<<20, nil)
	s.MemoryBudget = 256
	dst, err := SortChannel(context.Background(), s, dir, "big")
	require.NoError(t, err)

	recs, err := ReadAll(dst)
	require.NoError(t, err)
	require.Len(t, recs, 500)
	for i := 1; i < len(recs); i++ {
		assert.LessOrEqual(t, recs[i-1].Key, recs[i].Key)
	}
	// stability: within k1 the payload lengths follow input order i%7 for i = 1, 4, 7, ...
	var k1 []int
	for _, r := range recs {
		if r.Key == "k1" {
			k1 = append(k1, len(r.String()))
		}
	}
	for j, n := range k1 {
		assert.Equal(t, (1+3*j)%7, n)
	}
}

func TestSortMissingSourceIsNoop(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "chan.sort")
	require.NoError(t, os.WriteFile(stale, []byte("old\t1\n"), 0o644))

	dst, err := SortChannel(context.Background(), NewMergeSorter(0, nil), dir, "chan")
	require.NoError(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))

	recs, err := ReadAll(dst)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExecSorter(t *testing.T) {
	if _, err := exec.LookPath("sort"); err != nil {
		t.Skip("sort binary not available")
	}
	runSorter(t, ExecSorter{})
}

func TestExecSorterFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chan"), []byte("a\t1\n"), 0o644))
	_, err := SortChannel(context.Background(), ExecSorter{Command: filepath.Join(dir, "no-such-sort")}, dir, "chan")
	assert.Error(t, err)
}
