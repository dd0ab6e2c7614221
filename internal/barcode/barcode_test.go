package barcode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdges(t *testing.T) {
	edges, err := Edges("TCGA-AB-1234-01A-01D-0001-01")
	require.NoError(t, err)
	assert.Equal(t, []Edge{
		{"TCGA-AB-1234", "TCGA-AB-1234-01A"},
		{"TCGA-AB-1234-01A", "TCGA-AB-1234-01A-01"},
		{"TCGA-AB-1234-01A-01", "TCGA-AB-1234-01A-01D"},
		{"TCGA-AB-1234-01A-01D", "TCGA-AB-1234-01A-01D-0001-01"},
	}, edges)
}

func TestEdgesRejectsShortBarcodes(t *testing.T) {
	for _, bc := range []string{"TCGA-AB-1234", "TCGA-AB-1234-01A-1", "XXXX-AB-1234-01A-01D"} {
		_, err := Edges(bc)
		assert.Error(t, err, bc)
	}
}

func TestDAGDeduplicatesInInputOrder(t *testing.T) {
	in := strings.Join([]string{
		"aliquotId",
		"TCGA-AB-1234-01A-01D-0001-01",
		"TCGA-AB-1234-01A-01R-0002-07",
		"TCGA-AB-1234-01A-01D-0001-01",
	}, "\n")

	d := NewDAG()
	_, err := d.ReadFrom(strings.NewReader(in))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	_, err = d.WriteTo(out)
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"TCGA-AB-1234\tTCGA-AB-1234-01A",
		"TCGA-AB-1234-01A\tTCGA-AB-1234-01A-01",
		"TCGA-AB-1234-01A-01\tTCGA-AB-1234-01A-01D",
		"TCGA-AB-1234-01A-01D\tTCGA-AB-1234-01A-01D-0001-01",
		"TCGA-AB-1234-01A-01\tTCGA-AB-1234-01A-01R",
		"TCGA-AB-1234-01A-01R\tTCGA-AB-1234-01A-01R-0002-07",
	}, "\n")+"\n", out.String())
	assert.Len(t, d.Edges(), 6)
}

func TestDAGReadFromStopsOnBadBarcode(t *testing.T) {
	_, err := NewDAG().ReadFrom(strings.NewReader("TCGA-AB\n"))
	assert.Error(t, err)
}
