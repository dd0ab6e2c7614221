package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/meta"
	"github.com/nucleus/tcga-import/pkg/table"
)

// =============================================================================
// FIXTURES
// =============================================================================

type record struct {
	Key   string
	Value any
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// channelRecords closes em and decodes every record of channel.
func channelRecords(t *testing.T, em *table.Emitter, channel string) []record {
	t.Helper()
	recs, err := table.ReadAll(em.Path(channel))
	require.NoError(t, err)
	out := make([]record, 0, len(recs))
	for _, r := range recs {
		var v any
		require.NoError(t, r.Decode(&v))
		out = append(out, record{Key: r.Key, Value: v})
	}
	return out
}

func extract(t *testing.T, ex Extractor, name, content, subtype string, fields ...string) (*table.Emitter, *builder.ErrorLog) {
	t.Helper()
	src := writeFiles(t, map[string]string{name: content})
	work := t.TempDir()
	em, err := table.NewEmitter(work)
	require.NoError(t, err)
	errs := builder.NewErrorLog()
	f := File{Path: filepath.Join(src, name), Subtype: subtype, ProbeFields: fields, Out: em, Errors: errs}
	require.NoError(t, ex.Extract(context.Background(), f))
	require.NoError(t, em.Close())
	return em, errs
}

// =============================================================================
// DISPATCH
// =============================================================================

func TestExcludedAndMage(t *testing.T) {
	for _, name := range []string{"MANIFEST.txt", "x.CHANGES_DCC.txt", "README.txt", "a.wig", "DESCRIPTIO"} {
		assert.True(t, Excluded(name), name)
	}
	assert.False(t, Excluded("TCGA-01.seg.txt"))

	assert.True(t, IsMage("/w/a.sdrf.txt"))
	assert.True(t, IsMage("/w/a.idf.txt"))
	assert.True(t, IsMage("/w/DESCRIPTION.txt"))
	assert.False(t, IsMage("/w/a.txt"))
}

func TestAnchorMatchesFromStart(t *testing.T) {
	re, err := Anchor(`gene.txt$|^.*sdrf.txt$`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("gene.txt"))
	assert.False(t, re.MatchString("a.gene.txt"))
	assert.True(t, re.MatchString("x.sdrf.txt"))

	none, err := Anchor("")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = Anchor("(")
	assert.Error(t, err)
}

func TestMageScan(t *testing.T) {
	sdrf := "Extract Name\tMaterial Type\tHybridization Name\tDerived Array Data File\n" +
		"TCGA-AA-0001-01A\ttotal_RNA\tH0\tskip.txt\n" +
		"TCGA-AA-0002-01A\tRNA\tH2\tdata2.level3.txt\n" +
		"\n" +
		"TCGA-AA-0003-01A\n"
	idf := "Investigation Title\tOvarian study \n" +
		"Person Affiliation\tBroad\n" +
		"Unrelated\tvalue\n" +
		"Date of Experiment\n"
	dir := writeFiles(t, map[string]string{
		"mage/a.sdrf.txt":       sdrf,
		"mage/a.idf.txt":        idf,
		"mage/DESCRIPTION.txt":  "  Level 3 data.\n",
		"data/TCGA-01.seg.txt":  "ignored",
		"data/other.sdrf.other": "ignored",
	})
	work := t.TempDir()
	em, err := table.NewEmitter(work)
	require.NoError(t, err)

	ext, err := NewScanner(dir, nil).Mage(context.Background(), em, builder.NewErrorLog())
	require.NoError(t, err)
	require.NoError(t, em.Close())

	assert.Equal(t, meta.Document{
		"title":        "Ovarian study",
		"dataProducer": "Broad",
		"description":  "Level 3 data.",
	}, ext)

	got := channelRecords(t, em, builder.TargetsChannel)
	assert.Equal(t, []record{
		{"data2", "TCGA-AA-0002-01A"},
		{"data2.level3.txt", "TCGA-AA-0002-01A"},
		{"H2", "TCGA-AA-0002-01A"},
		{"TCGA-AA-0002-01A", "TCGA-AA-0002-01A"},
		{"TCGA-AA-0003-01A", "TCGA-AA-0003-01A"},
	}, got)
}

func TestScanPassFilters(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b/x.gene.txt":       "",
		"a/y.gene.txt":       "",
		"a/y.adf.txt":        "",
		"a/MANIFEST.txt":     "",
		"a/z.sdrf.txt":       "",
		"a/.hidden.gene.txt": "",
		"a/other.dat":        "",
	})
	var seen []string
	rec := ExtractorFunc(func(ctx context.Context, f File) error {
		seen = append(seen, f.Name())
		assert.Equal(t, "geneExp", f.Subtype)
		return nil
	})
	inc, err := Anchor(`.*\.txt$`)
	require.NoError(t, err)
	exc, err := Anchor(`.*.adf.txt`)
	require.NoError(t, err)

	n, err := NewScanner(dir, nil).Scan(context.Background(), Pass{
		Subtype: "geneExp", Include: inc, Exclude: exc, Extractor: rec,
	}, nil, builder.NewErrorLog())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"y.gene.txt", "x.gene.txt"}, seen)
}

func TestScanRequiresExtractor(t *testing.T) {
	_, err := NewScanner(t.TempDir(), nil).Scan(context.Background(), Pass{Subtype: "x"}, nil, nil)
	assert.Error(t, err)
}

func TestScanCancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": ""})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(dir, nil).Scan(ctx, Pass{Subtype: "x", Extractor: Passthrough}, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// GENETIC EXTRACTORS
// =============================================================================

func TestGeneticTwoHeader(t *testing.T) {
	content := "Hybridization REF\tS1\tS1\tS2\n" +
		"Composite Element REF\tBeta_Value\tGene_Symbol\tBeta_Value\n" +
		"cg1\t0.5\tA1\n"
	em, errs := extract(t, Genetic, "m.txt", content, "betaValue", "Beta_Value")
	assert.Equal(t, []record{
		{"cg1", map[string]any{"target": "S1", "Beta_Value": "0.5"}},
		{"cg1", map[string]any{"target": "S2", "Beta_Value": "NA"}},
	}, channelRecords(t, em, builder.ProbesChannel("betaValue")))
	assert.Equal(t, 0, errs.Len())
}

func TestGeneticRowsKeyedByFirstColumn(t *testing.T) {
	content := "gene\tRPKM\tcount\nTP53\t1.5\t3\nshort\n"
	em, errs := extract(t, Genetic, "x.gene.quantification.txt", content, "geneExp", "RPKM")
	assert.Equal(t, []record{
		{"TP53", map[string]any{"gene": "TP53", "RPKM": "1.5", "count": "3", "file": "x.gene.quantification.txt"}},
	}, channelRecords(t, em, builder.ProbesChannel("geneExp")))
	assert.Equal(t, []string{"Short row: x.gene.quantification.txt:3"}, errs.Messages())
}

func TestGeneticSegmentLayouts(t *testing.T) {
	fileSeg := "Chromosome\tStart\tEnd\tSegment_Mean\n7\t10\t20\t0.1\n"
	em, _ := extract(t, Genetic, "TCGA-AA-0001.seg.txt", fileSeg, "cna", "seg.mean")
	assert.Equal(t, []record{
		{"TCGA-AA-0001", map[string]any{"chrom": "7", "loc.start": "10", "loc.end": "20", "seg.mean": "0.1", "file": "TCGA-AA-0001.seg.txt"}},
	}, channelRecords(t, em, builder.SegmentsChannel("cna")))

	rowSeg := "ID\tchrom\tloc.start\tloc.end\tseg.mean\nS1\t1\t5\t9\t-0.2\n"
	em, _ = extract(t, Segment, "all.seg", rowSeg, "cna", "seg.mean")
	assert.Equal(t, []record{
		{"S1", map[string]any{"ID": "S1", "chrom": "1", "loc.start": "5", "loc.end": "9", "seg.mean": "-0.2", "file": "all.seg"}},
	}, channelRecords(t, em, builder.SegmentsChannel("cna")))
}

func TestSegmentIgnoresMatrices(t *testing.T) {
	em, _ := extract(t, Segment, "x.txt", "gene\tRPKM\nTP53\t1\n", "cna", "seg.mean")
	assert.Empty(t, channelRecords(t, em, builder.ProbesChannel("cna")))
	assert.Empty(t, channelRecords(t, em, builder.SegmentsChannel("cna")))
}

func TestMethylation450Formatting(t *testing.T) {
	content := "Hybridization REF\tS1\tS2\tS3\n" +
		"Composite Element REF\tBeta_value\tBeta_value\tBeta_value\n" +
		"cg1\t0.123456\tNA\n"
	em, _ := extract(t, Methylation450, "m.txt", content, "betaValue", "Beta_value", "Beta_Value")
	assert.Equal(t, []record{
		{"cg1", map[string]any{"target": "S1", "Beta_value": "0.1235"}},
		{"cg1", map[string]any{"target": "S2", "Beta_value": "NA"}},
		{"cg1", map[string]any{"target": "S3", "Beta_value": "NA"}},
	}, channelRecords(t, em, builder.ProbesChannel("betaValue")))

	em, _ = extract(t, Methylation450, "rows.txt", "gene\tBeta_value\nTP53\t1\n", "betaValue", "Beta_value")
	assert.Empty(t, channelRecords(t, em, builder.ProbesChannel("betaValue")))
}

func TestSNP6(t *testing.T) {
	content := "Sample\tChromosome\tStart\tEnd\tNum_Probes\tSegment_Mean\n" +
		"TCGA-AA-0001-01A\t1\t100\t200\t12\t0.3\n"
	em, _ := extract(t, SNP6, "x.hg19.seg.txt", content, "cna_probecount")
	assert.Equal(t, []record{
		{"TCGA-AA-0001-01A", map[string]any{"chrom": "1", "loc.start": "100", "loc.end": "200", "Num_Probes": "12", "seg.mean": "0.3"}},
	}, channelRecords(t, em, builder.SegmentsChannel("cna_probecount")))
}

func TestPassthrough(t *testing.T) {
	em, _ := extract(t, Passthrough, "calls.maf", "Hugo_Symbol\n", "maf")
	got := channelRecords(t, em, builder.FilesChannel("maf"))
	require.Len(t, got, 1)
	assert.Equal(t, "calls.maf", got[0].Key)
	assert.Contains(t, got[0].Value.(map[string]any)["file"], "calls.maf")
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "seg.mean", Canonical("mean"))
	assert.Equal(t, "chrom", Canonical("Chromosome"))
	assert.Equal(t, "Signal", Canonical("Signal"))
}

// =============================================================================
// CLINICAL XML
// =============================================================================

const clinicalDoc = `<?xml version="1.0" encoding="UTF-8"?>
<!-- generated -->
<bio:tcga_bcr xmlns:bio="http://tcga.nci/bcr/xml/biospecimen/2.3" xmlns:shared="http://tcga.nci/bcr/xml/shared/2.3" xmlns:admin="http://tcga.nci/bcr/xml/administration/2.3">
  <admin:admin>
    <admin:disease_code xsd_ver="2.3">OV</admin:disease_code>
  </admin:admin>
  <bio:patient>
    <shared:bcr_patient_barcode xsd_ver="2.3" preferred_name="">TCGA-AA-0001</shared:bcr_patient_barcode>
    <shared:gender xsd_ver="2.3" preferred_name="sex">FEMALE</shared:gender>
    <shared:race xsd_ver="2.3">WHITE</shared:race>
    <shared:notes>no version</shared:notes>
    <shared:vital_status xsd_ver="2.3" preferred_name=""/>
    <shared:stage_event>
      <shared:pathologic_stage xsd_ver="2.3">Stage IIIC</shared:pathologic_stage>
      <shared:tnm_categories>
        <shared:pathologic_categories>
          <shared:pathologic_T xsd_ver="2.3">T3c</shared:pathologic_T>
        </shared:pathologic_categories>
      </shared:tnm_categories>
    </shared:stage_event>
    <bio:samples>
      <bio:sample>
        <bio:bcr_sample_barcode xsd_ver="2.3">TCGA-AA-0001-01A</bio:bcr_sample_barcode>
        <bio:sample_type xsd_ver="2.3">Primary Tumor</bio:sample_type>
      </bio:sample>
      <bio:sample>
        <bio:bcr_sample_barcode xsd_ver="2.3">TCGA-AA-0001-10A</bio:bcr_sample_barcode>
        <bio:sample_type xsd_ver="2.3">Blood Derived Normal</bio:sample_type>
      </bio:sample>
    </bio:samples>
    <bio:follow_ups>
      <bio:follow_up sequence="2">
        <bio:bcr_followup_barcode xsd_ver="2.3">TCGA-AA-0001-F2</bio:bcr_followup_barcode>
        <bio:vital_status xsd_ver="2.3">Dead</bio:vital_status>
      </bio:follow_up>
    </bio:follow_ups>
  </bio:patient>
</bio:tcga_bcr>
`

func value(s string) map[string]any { return map[string]any{"value": s} }

func TestClinicalPatient(t *testing.T) {
	em, errs := extract(t, ClinicalXML, "clinical.xml", clinicalDoc, "patient")
	assert.Equal(t, 0, errs.Len())
	assert.Equal(t, []record{
		{"TCGA-AA-0001", map[string]any{
			"bcr_patient_barcode": value("TCGA-AA-0001"),
			"sex":                 value("FEMALE"),
			"race":                value("WHITE"),
			"vital_status":        value(""),
			"pathologic_stage":    value("Stage IIIC"),
			"pathologic_T":        value("T3c"),
		}},
	}, channelRecords(t, em, "patient"))
}

func TestClinicalSamplesAndFollowups(t *testing.T) {
	em, _ := extract(t, ClinicalXML, "clinical.xml", clinicalDoc, "samples")
	got := channelRecords(t, em, "sample")
	require.Len(t, got, 2)
	assert.Equal(t, "TCGA-AA-0001-01A", got[0].Key)
	assert.Equal(t, value("Primary Tumor"), got[0].Value.(map[string]any)["sample_type"])
	assert.Equal(t, "TCGA-AA-0001-10A", got[1].Key)

	em, _ = extract(t, ClinicalXML, "clinical.xml", clinicalDoc, "followup")
	assert.Equal(t, []record{
		{"TCGA-AA-0001-F2", map[string]any{
			"sequence":             value("2"),
			"bcr_followup_barcode": value("TCGA-AA-0001-F2"),
			"vital_status":         value("Dead"),
		}},
	}, channelRecords(t, em, "followup"))

	em, _ = extract(t, ClinicalXML, "clinical.xml", clinicalDoc, "drug")
	assert.Empty(t, channelRecords(t, em, "drug"))
}

func TestClinicalMalformedXMLIsSoft(t *testing.T) {
	_, errs := extract(t, ClinicalXML, "bad.xml", "<tcga_bcr><patient>", "patient")
	assert.Equal(t, 1, errs.Len())
}

func TestClinicalNamespacePrefixes(t *testing.T) {
	for in, want := range map[string]string{"bio:patient": "patient", "shared:gender": "gender", "a:b:c": "c", "plain": "plain"} {
		assert.Equal(t, want, localName(in), in)
	}

	root, err := parseXML([]byte(clinicalDoc))
	require.NoError(t, err)
	assert.Equal(t, "tcga_bcr", root.name)
	require.Len(t, root.find("tcga_bcr/patient/samples/sample"), 2)

	plain := `<tcga_bcr><patient><bcr_patient_barcode xsd_ver="2.3">TCGA-AA-0009</bcr_patient_barcode></patient></tcga_bcr>`
	em, errs := extract(t, ClinicalXML, "plain.xml", plain, "patient")
	assert.Equal(t, 0, errs.Len())
	assert.Equal(t, []record{
		{"TCGA-AA-0009", map[string]any{"bcr_patient_barcode": value("TCGA-AA-0009")}},
	}, channelRecords(t, em, "patient"))
}

func TestClinicalEntityNames(t *testing.T) {
	for in, want := range map[string]string{"drugs": "drug", "radiations": "radiation", "patient": "patient", "follow_up": "followup"} {
		got, ok := ClinicalEntity(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ClinicalEntity("aliens")
	assert.False(t, ok)
	assert.Len(t, ClinicalEntities(), 8)
}
