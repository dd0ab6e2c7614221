package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rainycape/unidecode"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/nucleus/tcga-import/pkg/table"
)

// SanitizedFields are withheld from clinical tables when sanitizing.
var SanitizedFields = map[string]bool{"race": true, "ethnicity": true}

// ClinicalBuilder writes one entity channel (patient, sample, drug, ...) as
// a sample by field table.
type ClinicalBuilder struct {
	Entity   string
	Sanitize bool
	Env      Env
}

// Fold returns s as ASCII text safe for a single TSV cell.
func Fold(s string) string {
	s = unidecode.Unidecode(norm.NFC.String(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\r':
			return ' '
		}
		return r
	}, s)
}

// Build writes <dir>/<entity>.clinical_file.
func (b ClinicalBuilder) Build(ctx context.Context) (*Result, error) {
	env := b.Env
	log := env.logger().WithFields(logrus.Fields{"entity": b.Entity, "kind": "clinical"})

	sorted, err := table.SortChannel(ctx, env.Sorter, env.Dir, b.Entity)
	if err != nil {
		return nil, err
	}

	var (
		entities []string
		values   = map[string]map[string]string{}
		fields   []string
		seen     = map[string]bool{}
	)
	err = table.ForEach(sorted, func(rec table.Record) error {
		var doc map[string]any
		if err := rec.Decode(&doc); err != nil {
			env.errors().Add("Field error: %s", string(rec.Value))
			return nil
		}
		row, ok := values[rec.Key]
		if !ok {
			row = map[string]string{}
			values[rec.Key] = row
			entities = append(entities, rec.Key)
		}
		names := make([]string, 0, len(doc))
		for name := range doc {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if b.Sanitize && SanitizedFields[name] {
				continue
			}
			row[name] = clinicalValue(doc[name])
			if !seen[name] {
				seen[name] = true
				fields = append(fields, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sorted, err)
	}
	if len(entities) == 0 {
		log.Info("no entities found")
		return &Result{}, nil
	}

	outPath := filepath.Join(env.Dir, b.Entity+".clinical_file")
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create clinical table %s: %w", outPath, err)
	}
	w := bufio.NewWriter(out)
	header := append([]string{"sample"}, fields...)
	if _, err := w.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		out.Close()
		return nil, fmt.Errorf("write clinical table: %w", err)
	}
	cells := make([]string, len(fields))
	for _, key := range entities {
		if err := ctx.Err(); err != nil {
			out.Close()
			return nil, err
		}
		row := values[key]
		for i, name := range fields {
			cells[i] = Fold(row[name])
		}
		if _, err := w.WriteString(Fold(key) + "\t" + strings.Join(cells, "\t") + "\n"); err != nil {
			out.Close()
			return nil, fmt.Errorf("write clinical table: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return nil, fmt.Errorf("write clinical table: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close clinical table: %w", err)
	}
	log.WithFields(logrus.Fields{"rows": len(entities), "cols": len(fields)}).Info("clinical table built")
	return &Result{Path: outPath, Rows: len(entities), Cols: len(fields)}, nil
}

func clinicalValue(v any) string {
	if m, ok := v.(map[string]any); ok {
		return cellString(m["value"])
	}
	return cellString(v)
}
