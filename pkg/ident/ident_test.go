package ident

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTableKeepsTwoColumnLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uuid.tsv")
	content := "uuid-1\tTCGA-AA-0001-01A\nbroken line\nuuid-2\tTCGA-AA-0002-01A\textra\nuuid-1\tTCGA-AA-0001-01B\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, Table{"uuid-1": "TCGA-AA-0001-01B"}, tbl)
	assert.Equal(t, "TCGA-AA-0001-01B", tbl.Lookup("uuid-1"))
	assert.Equal(t, "other", tbl.Lookup("other"))
}

func TestLoadTableMissing(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPassthroughNilTable(t *testing.T) {
	id, ok := Passthrough{}.Translate("abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestGermlineCensorship(t *testing.T) {
	tr := Germline{Next: Passthrough{Table: Table{"u1": "TCGA-AB-1234-11A"}}}

	_, ok := tr.Translate("TCGA-AB-1234-10A-01D")
	assert.False(t, ok)
	_, ok = tr.Translate("u1")
	assert.False(t, ok)

	id, ok := tr.Translate("TCGA-AB-1234-01A-01D")
	assert.True(t, ok)
	assert.Equal(t, "TCGA-AB-1234-01A-01D", id)

	assert.True(t, IsNormalTissue("TCGA-XY-0000-1"))
	assert.False(t, IsNormalTissue("TCGA-XY-0000-0"))
}

func writeTargets(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.sort")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestTargetMapLastWriteWins(t *testing.T) {
	path := writeTargets(t, "T1\t\"a\"\nT1\t\"b\"\nT2\t\"c\"\n")
	m, err := LoadTargetMap(path, nil)
	require.NoError(t, err)
	raw, ok := m.Get("T1")
	require.True(t, ok)
	assert.Equal(t, "b", raw)
	assert.Equal(t, []string{"T1", "T2"}, m.Keys())
}

func TestTargetMapCleanup(t *testing.T) {
	path := writeTargets(t, "S1\t\"TCGA-AA-0001-01A.SD\"\n")
	m, err := LoadTargetMap(path, regexp.MustCompile(`\.SD`))
	require.NoError(t, err)
	raw, _ := m.Get("S1")
	assert.Equal(t, "TCGA-AA-0001-01A", raw)
}

func TestEnumerateDeterministic(t *testing.T) {
	path := writeTargets(t, "T1\t\"s1\"\nT2\t\"s1\"\nT3\t\"TCGA-AA-0001-11A\"\nT4\t\"s2\"\n")
	m, err := LoadTargetMap(path, nil)
	require.NoError(t, err)

	tr := Germline{Next: Passthrough{}}
	first := Enumerate(m, tr)
	second := Enumerate(m, tr)
	assert.Equal(t, []string{"s1", "s2"}, first.Names())
	assert.Equal(t, first.Names(), second.Names())

	idx, ok := first.Index("s2")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = first.Index("TCGA-AA-0001-11A")
	assert.False(t, ok)

	id, found, ok := m.Resolve("T3", tr)
	assert.True(t, found)
	assert.False(t, ok)
	assert.Empty(t, id)
	_, found, _ = m.Resolve("missing", tr)
	assert.False(t, found)
}

func TestEnumerateMissingTargetsFile(t *testing.T) {
	m, err := LoadTargetMap(filepath.Join(t.TempDir(), "nope"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, Enumerate(m, Passthrough{}).Len())
}
