package platform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/ident"
	"github.com/nucleus/tcga-import/pkg/meta"
	"github.com/nucleus/tcga-import/pkg/table"
)

// =============================================================================
// REGISTRY
// =============================================================================

func TestDefaultRegistry(t *testing.T) {
	r := Default()

	p, err := r.Lookup("Genome_Wide_SNP_6")
	require.NoError(t, err)
	assert.Equal(t, KindSegment, p.Kind)
	assert.Equal(t, "snp6", p.Scanner)
	assert.Equal(t, []string{"cna", "cna_nocnv", "cna_probecount", "cna_nocnv_probecount"}, p.SubtypeNames())

	st, ok := p.Subtype("cna_probecount")
	require.True(t, ok)
	assert.Equal(t, "BRCA.hg19.cna_probecount.bed", st.FileName("BRCA"))
	assert.Equal(t, []string{"Num_Probes", "Segment_Mean"}, st.ValueFields)

	_, ok = p.Subtype("geneExp")
	assert.False(t, ok)

	assert.Contains(t, r.Names(), "bio")
	assert.Contains(t, r.Names(), "Mutation Calling")
	assert.IsIncreasing(t, r.Names())
}

func TestLookupUnknown(t *testing.T) {
	_, err := Default().Lookup("Nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPlatform)
	assert.Contains(t, err.Error(), "Nope")
}

func TestDefaultScannerAndNaming(t *testing.T) {
	r := Default()

	agilent, err := r.Lookup("AgilentG4502A_07_3")
	require.NoError(t, err)
	assert.Equal(t, "genetic", agilent.Scanner)
	assert.Equal(t, "X.geneExp.tsv", agilent.Subtypes[0].FileName("X"))

	hap, err := r.Lookup("HumanHap550")
	require.NoError(t, err)
	assert.Equal(t, "segment", hap.Scanner)
	assert.Equal(t, "X.cna.bed", hap.Subtypes[0].FileName("X"))

	abi, err := r.Lookup("ABI")
	require.NoError(t, err)
	assert.Equal(t, "X.maf", abi.Subtypes[0].FileName("X"))
}

func TestSubtypePassAnchorsPatterns(t *testing.T) {
	p, err := Default().Lookup("IlluminaHiSeq_RNASeqV2")
	require.NoError(t, err)
	st, ok := p.Subtype("isoformExp")
	require.True(t, ok)

	pass := st.Pass(nil)
	require.NotNil(t, pass.Include)
	assert.True(t, pass.Include.MatchString("x.rsem.isoforms.results"))
	assert.False(t, pass.Include.MatchString("x.rsem.genes.normalized_results"))
	assert.Nil(t, pass.Exclude)
	assert.Equal(t, []string{"raw_count"}, pass.ProbeFields)
}

func TestTranslatorPolicy(t *testing.T) {
	r := Default()
	base := ident.Passthrough{}

	censored, err := r.Lookup("IlluminaHiSeq_DNASeqC")
	require.NoError(t, err)
	_, ok := censored.Translator(base).Translate("TCGA-AB-1234-10A")
	assert.False(t, ok)
	id, ok := censored.Translator(base).Translate("TCGA-AB-1234-01A")
	assert.True(t, ok)
	assert.Equal(t, "TCGA-AB-1234-01A", id)

	plain, err := r.Lookup("HumanHap550")
	require.NoError(t, err)
	id, ok = plain.Translator(nil).Translate("TCGA-AB-1234-10A")
	assert.True(t, ok)
	assert.Equal(t, "TCGA-AB-1234-10A", id)
}

func TestTargetCleanup(t *testing.T) {
	p, err := Default().Lookup("MDA_RPPA_Core")
	require.NoError(t, err)
	require.NotNil(t, p.Cleanup())
	assert.Equal(t, "TCGA-01", p.Cleanup().ReplaceAllString("TCGA-01.SD", ""))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestNewRegistryRejectsInvalidEntries(t *testing.T) {
	matrix := func(mod func(*Platform)) Platform {
		p := Platform{Name: "p", Kind: KindMatrix, Subtypes: []Subtype{{Name: "geneExp", ProbeFields: []string{"v"}}}}
		mod(&p)
		return p
	}
	cases := map[string]Platform{
		"no name":         matrix(func(p *Platform) { p.Name = "" }),
		"unknown kind":    matrix(func(p *Platform) { p.Kind = "heatmap" }),
		"unknown scanner": matrix(func(p *Platform) { p.Scanner = "ocr" }),
		"unknown censor":  matrix(func(p *Platform) { p.Censor = "somatic" }),
		"bad cleanup":     matrix(func(p *Platform) { p.TargetCleanup = "(" }),
		"no subtypes":     matrix(func(p *Platform) { p.Subtypes = nil }),
		"duplicate":       matrix(func(p *Platform) { p.Subtypes = append(p.Subtypes, p.Subtypes[0]) }),
		"bad channel":     matrix(func(p *Platform) { p.Subtypes[0].Name = "a/b" }),
		"bad include":     matrix(func(p *Platform) { p.Subtypes[0].FileInclude = "[" }),
		"no probe fields": matrix(func(p *Platform) { p.Subtypes[0].ProbeFields = nil }),
		"unknown entity":  {Name: "p", Kind: KindClinical, Subtypes: []Subtype{{Name: "tumour"}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(p)
			assert.Error(t, err)
		})
	}
}

func TestNewRegistryDoesNotShareSubtypes(t *testing.T) {
	src := Platform{Name: "p", Kind: KindMatrix, Subtypes: []Subtype{{Name: "geneExp", ProbeFields: []string{"v"}}}}
	r, err := NewRegistry(src)
	require.NoError(t, err)

	assert.Empty(t, src.Subtypes[0].Naming)
	p, err := r.Lookup("p")
	require.NoError(t, err)
	assert.Equal(t, "{base}.{subtype}.tsv", p.Subtypes[0].Naming)
}

func TestWithOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`platforms:
  - name: HumanHap550
    kind: segment
    censor: germline
    subtypes:
      - name: cna
        probeFields: [mean]
        valueFields: [mean]
  - name: Custom_Array
    kind: matrix
    subtypes:
      - name: geneExp
        fileInclude: '.*\.custom\.txt$'
        probeFields: [Signal]
        probeMap: hugo
`), 0o644))

	base := Default()
	r, err := base.WithOverlay(path)
	require.NoError(t, err)

	custom, err := r.Lookup("Custom_Array")
	require.NoError(t, err)
	assert.Equal(t, "genetic", custom.Scanner)
	assert.Equal(t, "hugo", custom.Subtypes[0].ProbeMap)

	hap, err := r.Lookup("HumanHap550")
	require.NoError(t, err)
	assert.Equal(t, CensorGermline, hap.Censor)
	assert.Equal(t, []string{"mean"}, hap.Subtypes[0].ValueFields)

	// the base registry is unchanged
	orig, err := base.Lookup("HumanHap550")
	require.NoError(t, err)
	assert.Equal(t, CensorNone, orig.Censor)
	_, err = base.Lookup("Custom_Array")
	assert.ErrorIs(t, err, ErrUnknownPlatform)

	assert.Len(t, r.Names(), len(base.Names())+1)
}

func TestWithOverlayErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Default().WithOverlay(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("platforms: [name: x\n"), 0o644))
	_, err = Default().WithOverlay(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("platforms:\n  - name: x\n    kind: heatmap\n"), 0o644))
	_, err = Default().WithOverlay(invalid)
	assert.Error(t, err)
}

// =============================================================================
// STRATEGIES
// =============================================================================

func job(t *testing.T, platform, subtype string) Job {
	t.Helper()
	p, err := Default().Lookup(platform)
	require.NoError(t, err)
	st, ok := p.Subtype(subtype)
	require.True(t, ok)
	return Job{
		Platform: p,
		Subtype:  st,
		Basename: "BRCA",
		Version:  "2013-05-01",
		Acronym:  "BRCA",
		Env: builder.Env{
			Dir:    t.TempDir(),
			Sorter: table.NewMergeSorter(1<<20, nil),
			Errors: builder.NewErrorLog(),
		},
	}
}

func TestStrategyFor(t *testing.T) {
	for _, name := range Default().Names() {
		p, err := Default().Lookup(name)
		require.NoError(t, err)
		_, err = StrategyFor(p)
		assert.NoError(t, err, name)
	}
	_, err := StrategyFor(&Platform{Name: "x", Kind: "heatmap"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	j := job(t, "AgilentG4502A_07_3", "geneExp")
	s, err := StrategyFor(j.Platform)
	require.NoError(t, err)
	assert.Equal(t, meta.Document{
		"name": "BRCA.geneExp.tsv",
		"annotations": meta.Document{
			"fileType":     "genomicMatrix",
			"lastModified": "2013-05-01",
			"dataSubType":  "geneExp",
			"dataProducer": "TCGA",
			"rowKeySrc":    "hugo",
			"columnKeySrc": "tcga.BRCA",
		},
	}, s.Describe(j, "BRCA.geneExp.tsv"))

	j = job(t, "Genome_Wide_SNP_6", "cna")
	s, err = StrategyFor(j.Platform)
	require.NoError(t, err)
	d := s.Describe(j, "BRCA.hg19.cna.bed")
	assert.Equal(t, meta.Document{"@id": "hg19"}, d["assembly"])
	assert.Equal(t, "bed5", meta.Annotations(d)["filetype"])
	assert.Equal(t, "tcga.BRCA", meta.Annotations(d)["rowKeySrc"])

	j = job(t, "HumanHap550", "cna")
	s, err = StrategyFor(j.Platform)
	require.NoError(t, err)
	assert.NotContains(t, s.Describe(j, "x"), "assembly")

	j = job(t, "bio", "followup")
	s, err = StrategyFor(j.Platform)
	require.NoError(t, err)
	assert.Equal(t, "clinicalMatrix", meta.Annotations(s.Describe(j, "x"))["fileType"])

	j = job(t, "ABI", "maf")
	s, err = StrategyFor(j.Platform)
	require.NoError(t, err)
	ann := meta.Annotations(s.Describe(j, "BRCA.maf"))
	assert.Equal(t, "mutation", ann["dataSubType"])
	assert.Equal(t, "maf", ann["fileType"])
}

func TestMatrixStrategyBuild(t *testing.T) {
	j := job(t, "AgilentG4502A_07_3", "geneExp")
	em, err := table.NewEmitter(j.Env.Dir)
	require.NoError(t, err)
	require.NoError(t, em.Emit("H1", "TCGA-01", builder.TargetsChannel))
	require.NoError(t, em.Emit("TP53", map[string]any{
		"target": "H1",
		"log2 lowess normalized (cy5/cy3) collapsed by gene symbol": "1.5",
	}, builder.ProbesChannel("geneExp")))
	require.NoError(t, em.Close())

	s, err := StrategyFor(j.Platform)
	require.NoError(t, err)
	outs, err := s.Build(context.Background(), j)
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "BRCA.geneExp.tsv", outs[0].Name)
	assert.Equal(t, 1, outs[0].Rows)
	assert.Equal(t, 1, outs[0].Cols)
	assert.Equal(t, "BRCA.geneExp.tsv", outs[0].Meta["name"])

	b, err := os.ReadFile(outs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "#probe\tTCGA-01\nTP53\t1.5\n", string(b))
}

func TestMatrixStrategyBuildEmpty(t *testing.T) {
	j := job(t, "AgilentG4502A_07_3", "geneExp")
	s, err := StrategyFor(j.Platform)
	require.NoError(t, err)
	outs, err := s.Build(context.Background(), j)
	require.NoError(t, err)
	assert.Empty(t, outs)
}

func TestPassthroughBuild(t *testing.T) {
	t.Run("single file", func(t *testing.T) {
		j := job(t, "ABI", "maf")
		em, err := table.NewEmitter(j.Env.Dir)
		require.NoError(t, err)
		require.NoError(t, em.Emit("a.maf", map[string]any{"file": "/data/a.maf"}, builder.FilesChannel("maf")))
		require.NoError(t, em.Close())

		s, err := StrategyFor(j.Platform)
		require.NoError(t, err)
		outs, err := s.Build(context.Background(), j)
		require.NoError(t, err)
		require.Len(t, outs, 1)
		assert.Equal(t, "BRCA.maf", outs[0].Name)
		assert.Equal(t, "/data/a.maf", outs[0].Path)
	})

	t.Run("several files", func(t *testing.T) {
		j := job(t, "ABI", "maf")
		em, err := table.NewEmitter(j.Env.Dir)
		require.NoError(t, err)
		require.NoError(t, em.Emit("b.maf", map[string]any{"file": "/data/b.maf"}, builder.FilesChannel("maf")))
		require.NoError(t, em.Emit("a.maf", map[string]any{"file": "/data/a.maf"}, builder.FilesChannel("maf")))
		require.NoError(t, em.Emit("c.maf", map[string]any{"other": 1}, builder.FilesChannel("maf")))
		require.NoError(t, em.Close())

		s, err := StrategyFor(j.Platform)
		require.NoError(t, err)
		outs, err := s.Build(context.Background(), j)
		require.NoError(t, err)
		require.Len(t, outs, 2)
		assert.Equal(t, "BRCA.a.maf", outs[0].Name)
		assert.Equal(t, "BRCA.b.maf", outs[1].Name)
		assert.Equal(t, 1, j.Env.Errors.Len())
	})

	t.Run("no files", func(t *testing.T) {
		j := job(t, "ABI", "maf")
		s, err := StrategyFor(j.Platform)
		require.NoError(t, err)
		outs, err := s.Build(context.Background(), j)
		require.NoError(t, err)
		assert.Empty(t, outs)
	})
}
