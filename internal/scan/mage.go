package scan

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/meta"
)

// skippedMaterials are SDRF rows that describe inputs rather than assays.
var skippedMaterials = map[string]bool{
	"genomic_DNA":   true,
	"total_RNA":     true,
	"MDA cell line": true,
}

// idfFields maps IDF row labels to metadata keys.
var idfFields = map[string]string{
	"Investigation Title":    "title",
	"Experiment Description": "experimentalDescription",
	"Person Affiliation":     "dataProducer",
	"Date of Experiment":     "experimentalDate",
}

type sdrfSource struct {
	column string
	prefix bool
}

// sdrfSources lists the SDRF columns whose values name an experiment. prefix
// also registers the value up to its first dot.
var sdrfSources = []sdrfSource{
	{column: "Derived Array Data File", prefix: true},
	{column: "Derived Array Data Matrix File"},
	{column: "Derived Data File", prefix: true},
	{column: "Hybridization Name"},
	{column: "Sample Name"},
	{column: "Extract Name"},
}

func scanSDRF(path string, out Emitter, errs *builder.ErrorLog) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	var cols map[string]int
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read sdrf %s: %w", path, err)
		}
		if cols == nil {
			cols = make(map[string]int, len(row))
			for i, name := range row {
				cols[name] = i
			}
			continue
		}
		cell := func(column string) (string, bool) {
			i, ok := cols[column]
			if !ok || i >= len(row) {
				return "", false
			}
			return row[i], true
		}
		if material, ok := cell("Material Type"); ok && skippedMaterials[material] {
			continue
		}
		extract, ok := cell("Extract Name")
		if !ok {
			continue
		}
		for _, src := range sdrfSources {
			v, ok := cell(src.column)
			if !ok || v == "" {
				continue
			}
			if src.prefix {
				if err := emitTarget(out, strings.SplitN(v, ".", 2)[0], extract, errs); err != nil {
					return err
				}
			}
			if err := emitTarget(out, v, extract, errs); err != nil {
				return err
			}
		}
	}
}

func emitTarget(out Emitter, key, extract string, errs *builder.ErrorLog) error {
	if key == "" {
		return nil
	}
	if strings.ContainsAny(key, "\t\n\r") {
		errs.Add("Field error: %q", key)
		return nil
	}
	return out.Emit(key, extract, builder.TargetsChannel)
}

func scanIDF(path string, ext meta.Document) error {
	return eachLine(path, func(_ int, line string) error {
		row := strings.Split(line, "\t")
		if len(row) < 2 {
			return nil
		}
		if key, ok := idfFields[row[0]]; ok {
			ext[key] = strings.TrimSpace(row[1])
		}
		return nil
	})
}

func scanDescription(path string, ext meta.Document) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if text := strings.TrimSpace(string(b)); text != "" {
		ext["description"] = text
	}
	return nil
}
