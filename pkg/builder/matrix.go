package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/pkg/ident"
	"github.com/nucleus/tcga-import/pkg/table"
)

// NA marks a matrix cell without a measurement.
const NA = "NA"

// MatrixBuilder pivots the probe channel of one subtype into a probe by
// sample matrix.
type MatrixBuilder struct {
	Subtype string
	// ProbeFields lists candidate measurement fields in priority order.
	ProbeFields []string
	Env         Env
}

type cellPair struct {
	target string
	value  string
}

// Build writes <dir>/<subtype>.matrix_file. A matrix without retained rows is
// removed and reported as an empty Result.
func (b MatrixBuilder) Build(ctx context.Context) (*Result, error) {
	env := b.Env
	log := env.logger().WithFields(logrus.Fields{"subtype": b.Subtype, "kind": "matrix"})
	errs := env.errors()
	tr := env.translator()

	targets, err := env.targets(ctx)
	if err != nil {
		return nil, err
	}
	cols := ident.Enumerate(targets, tr)

	probes, err := table.SortChannel(ctx, env.Sorter, env.Dir, ProbesChannel(b.Subtype))
	if err != nil {
		return nil, err
	}

	outPath := filepath.Join(env.Dir, b.Subtype+".matrix_file")
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create matrix %s: %w", outPath, err)
	}
	w := bufio.NewWriter(out)

	header := append([]string{"#probe"}, cols.Names()...)
	if _, err := w.WriteString(strings.Join(header, "\t") + "\n"); err != nil {
		out.Close()
		return nil, fmt.Errorf("write matrix header: %w", err)
	}

	rows := 0
	flush := func(probe string, pairs []cellPair) error {
		if cols.Len() == 0 {
			return nil
		}
		row := make([]string, cols.Len())
		for i := range row {
			row[i] = NA
		}
		missing := map[string]bool{}
		for _, p := range pairs {
			id, found, ok := targets.Resolve(p.target, tr)
			if !found {
				if !missing[p.target] {
					missing[p.target] = true
					errs.Add("TargetInfo Not Found: %s", p.target)
				}
				continue
			}
			if !ok {
				continue
			}
			idx, ok := cols.Index(id)
			if !ok {
				continue
			}
			row[idx] = p.value
		}
		na := 0
		for _, cell := range row {
			if cell == NA {
				na++
			}
		}
		if na >= len(row) {
			return nil
		}
		rows++
		_, err := w.WriteString(probe + "\t" + strings.Join(row, "\t") + "\n")
		return err
	}

	r, err := table.OpenReader(probes)
	if err != nil {
		out.Close()
		return nil, err
	}
	defer r.Close()

	var (
		current string
		started bool
		pairs   []cellPair
		records int
	)
	for r.Next() {
		rec := r.Value()
		records++
		if records%65536 == 0 {
			if err := ctx.Err(); err != nil {
				out.Close()
				return nil, err
			}
		}
		if started && rec.Key != current {
			if err := flush(current, pairs); err != nil {
				out.Close()
				return nil, fmt.Errorf("write matrix row: %w", err)
			}
			pairs = pairs[:0]
		}
		current, started = rec.Key, true

		var value map[string]any
		if err := rec.Decode(&value); err != nil {
			errs.Add("Field error: %s", string(rec.Value))
			continue
		}
		target, ok := firstField(value, "target", "file")
		if !ok {
			continue
		}
		measurement, ok := firstField(value, b.ProbeFields...)
		if !ok {
			continue
		}
		pairs = append(pairs, cellPair{target: cellString(target), value: cellString(measurement)})
	}
	if err := r.Err(); err != nil {
		out.Close()
		return nil, fmt.Errorf("read %s: %w", probes, err)
	}
	if started {
		if err := flush(current, pairs); err != nil {
			out.Close()
			return nil, fmt.Errorf("write matrix row: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return nil, fmt.Errorf("flush matrix: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close matrix: %w", err)
	}

	if rows == 0 {
		log.Info("no rows retained, dropping matrix")
		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove empty matrix: %w", err)
		}
		return &Result{Cols: cols.Len()}, nil
	}
	log.WithFields(logrus.Fields{"rows": rows, "cols": cols.Len()}).Info("matrix built")
	return &Result{Path: outPath, Rows: rows, Cols: cols.Len()}, nil
}
