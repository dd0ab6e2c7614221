package scan

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nucleus/tcga-import/pkg/builder"
)

// commonNames canonicalizes header spellings shared by the segment formats.
var commonNames = map[string]string{
	"mean":         "seg.mean",
	"Segment_Mean": "seg.mean",
	"Start":        "loc.start",
	"End":          "loc.end",
	"Chromosome":   "chrom",
}

// Canonical returns the common spelling of a column name.
func Canonical(col string) string {
	if c, ok := commonNames[col]; ok {
		return c
	}
	return col
}

func canonicalize(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = Canonical(c)
	}
	return out
}

type layout int

const (
	layoutRows         layout = iota // one probe per row, keyed by column 0
	layoutTwoHeader                  // sample names row, then value type row
	layoutFileSegments               // segments of a single sample named by the file
	layoutRowSegments                // segments keyed by column 0
)

func detectLayout(header []string) layout {
	switch {
	case header[0] == "Hybridization REF" || header[0] == "Sample REF":
		return layoutTwoHeader
	case header[0] == "Chromosome" || header[0] == "chromosome":
		return layoutFileSegments
	case len(header) > 1 && header[1] == "chrom":
		return layoutRowSegments
	}
	return layoutRows
}

// fileTarget names the sample of a single-sample file: its base name up to the
// first dot.
func fileTarget(name string) string {
	return strings.SplitN(name, ".", 2)[0]
}

// Genetic extracts level 3 genetic data files. Matrix layouts go to the probes
// channel and segment layouts to the segments channel.
var Genetic = ExtractorFunc(func(ctx context.Context, f File) error {
	return extractTable(f, true, nil)
})

// Segment extracts only the segment layouts.
var Segment = ExtractorFunc(func(ctx context.Context, f File) error {
	return extractTable(f, false, nil)
})

// Methylation450 extracts two-header matrices, formatting values with four
// decimals and substituting NA for anything that is not a number.
var Methylation450 = ExtractorFunc(func(ctx context.Context, f File) error {
	return extractTable(f, false, formatBeta)
})

func formatBeta(v string) string {
	x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return builder.NA
	}
	return fmt.Sprintf("%.4f", x)
}

// extractTable handles the shared TCGA tab separated layouts. matrices
// enables the row and two-header layouts; format, when set, restricts the
// extractor to the two-header layout and rewrites every value.
func extractTable(f File, matrices bool, format func(string) string) error {
	var (
		header  []string
		types   []string
		mode    layout
		target  string
		probes  = builder.ProbesChannel(f.Subtype)
		segment = builder.SegmentsChannel(f.Subtype)
		fields  = fieldSet(f.ProbeFields)
	)
	twoHeader := matrices || format != nil

	return eachLine(f.Path, func(n int, line string) error {
		if header == nil {
			raw := strings.Split(line, "\t")
			mode = detectLayout(raw)
			header = canonicalize(raw)
			if mode == layoutFileSegments {
				target = fileTarget(f.Name())
			}
			return nil
		}
		if mode == layoutTwoHeader && twoHeader && types == nil {
			types = canonicalize(strings.Split(line, "\t"))
			return nil
		}
		if line == "" {
			return nil
		}
		row := strings.Split(line, "\t")

		switch {
		case mode == layoutTwoHeader && twoHeader:
			return emitTwoHeader(f, probes, header, types, row, fields, format)
		case format != nil:
			return nil
		case mode == layoutFileSegments, mode == layoutRowSegments:
			rec, ok := rowRecord(f, header, row, n)
			if !ok {
				return nil
			}
			key := target
			if mode == layoutRowSegments {
				key = row[0]
			}
			return emit(f, key, rec, segment)
		case matrices:
			rec, ok := rowRecord(f, header, row, n)
			if !ok {
				return nil
			}
			return emit(f, row[0], rec, probes)
		}
		return nil
	})
}

func fieldSet(fields []string) map[string]bool {
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// rowRecord maps a data row onto the header and tags it with the file name.
func rowRecord(f File, header, row []string, n int) (map[string]any, bool) {
	if len(row) < len(header) {
		f.Errors.Add("Short row: %s:%d", f.Name(), n)
		return nil, false
	}
	rec := make(map[string]any, len(header)+1)
	for i, col := range header {
		rec[col] = row[i]
	}
	rec["file"] = f.Name()
	return rec, true
}

// emitTwoHeader emits one record per sample column of a two-header row.
func emitTwoHeader(f File, channel string, header, types, row []string, fields map[string]bool, format func(string) string) error {
	type sample struct {
		name  string
		value map[string]any
	}
	var samples []*sample
	byName := map[string]*sample{}
	for i := 1; i < len(types) && i < len(header); i++ {
		if !fields[types[i]] {
			continue
		}
		s, ok := byName[header[i]]
		if !ok {
			s = &sample{name: header[i], value: map[string]any{"target": header[i]}}
			byName[header[i]] = s
			samples = append(samples, s)
		}
		v := builder.NA
		if i < len(row) {
			v = row[i]
			if format != nil {
				v = format(v)
			}
		}
		s.value[types[i]] = v
	}
	for _, s := range samples {
		if err := emit(f, row[0], s.value, channel); err != nil {
			return err
		}
	}
	return nil
}

// SNP6 extracts Genome_Wide_SNP_6 segment files: every row is keyed by its
// first column and carries the remaining columns.
var SNP6 = ExtractorFunc(func(ctx context.Context, f File) error {
	var header []string
	channel := builder.SegmentsChannel(f.Subtype)
	return eachLine(f.Path, func(n int, line string) error {
		if header == nil {
			header = canonicalize(strings.Split(line, "\t"))
			return nil
		}
		if line == "" {
			return nil
		}
		row := strings.Split(line, "\t")
		if len(row) < len(header) {
			f.Errors.Add("Short row: %s:%d", f.Name(), n)
			return nil
		}
		rec := make(map[string]any, len(header))
		for i := 1; i < len(header); i++ {
			rec[header[i]] = row[i]
		}
		return emit(f, row[0], rec, channel)
	})
})

// Passthrough registers each file for publication as-is.
var Passthrough = ExtractorFunc(func(ctx context.Context, f File) error {
	return f.Out.Emit(f.Name(), map[string]any{"file": f.Path}, builder.FilesChannel(f.Subtype))
})

// emit writes a record, recording keys that cannot be stored as soft errors.
func emit(f File, key string, value any, channel string) error {
	if strings.ContainsAny(key, "\t\n\r") {
		f.Errors.Add("Field error: %q", key)
		return nil
	}
	return f.Out.Emit(key, value, channel)
}
