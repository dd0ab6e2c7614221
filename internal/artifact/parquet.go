package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/nucleus/tcga-import/pkg/builder"
)

// longSchema is the parquet layout of a matrix in long format.
var longSchema = mustSchema("probe", "sample", "value")

func mustSchema(names ...string) string {
	fields := make([]map[string]string, 0, len(names))
	for _, name := range names {
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", name),
		})
	}
	b, err := json.Marshal(map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// MatrixToParquet converts a genomic matrix file into a SNAPPY compressed
// parquet document with one (probe, sample, value) row per measured cell. NA
// cells are left out.
func MatrixToParquet(path string) ([]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, wrapError(CodeObjectNotFound, false, err)
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(longSchema, pfw, 4)
	if err != nil {
		return nil, 0, wrapError(CodeSinkWriteFailed, false, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	fail := func(err error) ([]byte, int64, error) {
		_ = pw.WriteStop()
		_ = pfw.Close()
		return nil, 0, wrapError(CodeSinkWriteFailed, false, fmt.Errorf("parquet %s: %w", path, err))
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<28)
	var samples []string
	var rows int64
	for sc.Scan() {
		cells := strings.Split(sc.Text(), "\t")
		if samples == nil {
			if len(cells) == 0 || cells[0] != "#probe" {
				return fail(fmt.Errorf("not a genomic matrix, header starts with %q", cells[0]))
			}
			samples = cells[1:]
			continue
		}
		for i, value := range cells[1:] {
			if i >= len(samples) || value == builder.NA {
				continue
			}
			rec, err := json.Marshal(map[string]string{"probe": cells[0], "sample": samples[i], "value": value})
			if err != nil {
				return fail(err)
			}
			if err := pw.Write(string(rec)); err != nil {
				return fail(err)
			}
			rows++
		}
	}
	if err := sc.Err(); err != nil {
		return fail(err)
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, 0, wrapError(CodeSinkWriteFailed, false, err)
	}
	_ = pfw.Close()
	return buf.Bytes(), rows, nil
}
