package builder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/pkg/table"
)

// DefaultSegmentValueFields are used when a SegmentBuilder names none.
var DefaultSegmentValueFields = []string{"seg.mean", "Segment_Mean"}

var (
	chromFields = []string{"chrom", "Chromosome"}
	startFields = []string{"loc.start", "Start"}
	endFields   = []string{"loc.end", "End"}
)

// SegmentBuilder writes the segment channel of one subtype as BED5.
type SegmentBuilder struct {
	Subtype     string
	ValueFields []string
	// PreserveStart writes start coordinates unchanged instead of converting
	// them to zero-based.
	PreserveStart bool
	Env           Env
}

// NormalizeChromosome maps chromosome spellings such as x, X, chrx and CHRX to chrX.
func NormalizeChromosome(chrom string) string {
	c := strings.ToLower(chrom)
	if !strings.HasPrefix(c, "chr") {
		c = "chr" + c
	}
	return strings.ReplaceAll(strings.ToUpper(c), "CHR", "chr")
}

// Build writes <dir>/<subtype>.segment_file.
func (b SegmentBuilder) Build(ctx context.Context) (*Result, error) {
	env := b.Env
	log := env.logger().WithFields(logrus.Fields{"subtype": b.Subtype, "kind": "segment"})
	errs := env.errors()
	tr := env.translator()
	valueFields := b.ValueFields
	if len(valueFields) == 0 {
		valueFields = DefaultSegmentValueFields
	}

	targets, err := env.targets(ctx)
	if err != nil {
		return nil, err
	}
	segments, err := table.SortChannel(ctx, env.Sorter, env.Dir, SegmentsChannel(b.Subtype))
	if err != nil {
		return nil, err
	}

	r, err := table.OpenReader(segments)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	outPath := filepath.Join(env.Dir, b.Subtype+".segment_file")
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create segment file %s: %w", outPath, err)
	}
	w := bufio.NewWriter(out)
	fail := func(err error) (*Result, error) {
		out.Close()
		return nil, err
	}

	lines := 0
	for r.Next() {
		if lines%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
		}
		rec := r.Value()
		id, found, ok := targets.Resolve(rec.Key, tr)
		if !found {
			errs.Add("TargetInfo Not Found: %s", rec.Key)
			continue
		}
		if !ok {
			continue
		}

		var value map[string]any
		if err := rec.Decode(&value); err != nil {
			errs.Add("Field error: %s", string(rec.Value))
			continue
		}
		line, ok := b.line(value, id, valueFields)
		if !ok {
			errs.Add("Field error: %s", string(rec.Value))
			continue
		}
		if _, err := w.WriteString(line); err != nil {
			return fail(fmt.Errorf("write segment: %w", err))
		}
		lines++
	}
	if err := r.Err(); err != nil {
		return fail(fmt.Errorf("read %s: %w", segments, err))
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flush segment file: %w", err))
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close segment file: %w", err)
	}

	if lines == 0 {
		log.Info("no segments written")
		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove empty segment file: %w", err)
		}
		return &Result{}, nil
	}
	log.WithField("rows", lines).Info("segments built")
	return &Result{Path: outPath, Rows: lines, Cols: 5}, nil
}

func (b SegmentBuilder) line(value map[string]any, sample string, valueFields []string) (string, bool) {
	chrom, ok := firstField(value, chromFields...)
	if !ok {
		return "", false
	}
	start, ok := firstField(value, startFields...)
	if !ok {
		return "", false
	}
	end, ok := firstField(value, endFields...)
	if !ok {
		return "", false
	}
	v, ok := firstField(value, valueFields...)
	if !ok {
		return "", false
	}
	s, err := strconv.ParseInt(strings.TrimSpace(cellString(start)), 10, 64)
	if err != nil {
		return "", false
	}
	if !b.PreserveStart {
		s--
	}
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s\n",
		NormalizeChromosome(cellString(chrom)), s, cellString(end), sample, cellString(v)), true
}
