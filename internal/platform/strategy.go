package platform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nucleus/tcga-import/internal/scan"
	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/meta"
	"github.com/nucleus/tcga-import/pkg/table"
)

var extractors = map[string]scan.Extractor{
	"genetic":        scan.Genetic,
	"segment":        scan.Segment,
	"snp6":           scan.SNP6,
	"methylation450": scan.Methylation450,
	"clinical-xml":   scan.ClinicalXML,
	"passthrough":    scan.Passthrough,
}

// Extractor returns the named scan extractor.
func Extractor(name string) (scan.Extractor, bool) {
	ex, ok := extractors[name]
	return ex, ok
}

// Job is one subtype pass of a platform build.
type Job struct {
	Platform *Platform
	Subtype  *Subtype
	Basename string
	Version  string
	// Acronym is the disease abbreviation used in key source names.
	Acronym  string
	Sanitize bool
	Env      builder.Env
}

// Output is a file ready for publication.
type Output struct {
	Name string
	Path string
	// Meta holds the computed metadata, before external and request metadata
	// are merged in.
	Meta meta.Document
	Rows int
	Cols int
}

// Strategy builds the outputs of one platform kind.
type Strategy interface {
	// Scan runs the subtype pass over the extracted tree.
	Scan(ctx context.Context, sc *scan.Scanner, job Job, out scan.Emitter) (int, error)
	// Build turns the scanned channels into outputs.
	Build(ctx context.Context, job Job) ([]Output, error)
	// Describe returns the computed metadata of an artifact called name.
	Describe(job Job, name string) meta.Document
}

// StrategyFor returns the strategy of the platform kind.
func StrategyFor(p *Platform) (Strategy, error) {
	switch p.Kind {
	case KindMatrix:
		return matrixStrategy{}, nil
	case KindSegment:
		return segmentStrategy{}, nil
	case KindClinical:
		return clinicalStrategy{}, nil
	case KindPassthrough:
		return passthroughStrategy{}, nil
	}
	return nil, fmt.Errorf("platform %s: no strategy for kind %q", p.Name, p.Kind)
}

type scanner struct{}

func (scanner) Scan(ctx context.Context, sc *scan.Scanner, job Job, out scan.Emitter) (int, error) {
	ex, ok := Extractor(job.Platform.Scanner)
	if !ok {
		return 0, fmt.Errorf("platform %s: unknown scanner %q", job.Platform.Name, job.Platform.Scanner)
	}
	return sc.Scan(ctx, job.Subtype.Pass(ex), out, job.Env.Errors)
}

func keySource(acronym string) string { return "tcga." + acronym }

func single(job Job, s Strategy, res *builder.Result) []Output {
	if res.Empty() {
		return nil
	}
	name := job.Subtype.FileName(job.Basename)
	return []Output{{Name: name, Path: res.Path, Meta: s.Describe(job, name), Rows: res.Rows, Cols: res.Cols}}
}

// =============================================================================
// MATRIX
// =============================================================================

type matrixStrategy struct{ scanner }

func (s matrixStrategy) Build(ctx context.Context, job Job) ([]Output, error) {
	res, err := builder.MatrixBuilder{
		Subtype:     job.Subtype.Name,
		ProbeFields: job.Subtype.ProbeFields,
		Env:         job.Env,
	}.Build(ctx)
	if err != nil {
		return nil, err
	}
	return single(job, s, res), nil
}

func (matrixStrategy) Describe(job Job, name string) meta.Document {
	return meta.Document{
		"name": name,
		"annotations": meta.Document{
			"fileType":     "genomicMatrix",
			"lastModified": job.Version,
			"dataSubType":  job.Subtype.Name,
			"dataProducer": "TCGA",
			"rowKeySrc":    job.Subtype.ProbeMap,
			"columnKeySrc": keySource(job.Acronym),
		},
	}
}

// =============================================================================
// SEGMENT
// =============================================================================

type segmentStrategy struct{ scanner }

func (s segmentStrategy) Build(ctx context.Context, job Job) ([]Output, error) {
	res, err := builder.SegmentBuilder{
		Subtype:       job.Subtype.Name,
		ValueFields:   job.Subtype.ValueFields,
		PreserveStart: job.Platform.PreserveStart,
		Env:           job.Env,
	}.Build(ctx)
	if err != nil {
		return nil, err
	}
	return single(job, s, res), nil
}

func (segmentStrategy) Describe(job Job, name string) meta.Document {
	d := meta.Document{
		"name": name,
		"annotations": meta.Document{
			"filetype":     "bed5",
			"lastModified": job.Version,
			"rowKeySrc":    keySource(job.Acronym),
			"dataSubType":  job.Subtype.Name,
			"dataProducer": "TCGA",
		},
	}
	if job.Platform.Assembly != "" {
		d["assembly"] = meta.Document{"@id": job.Platform.Assembly}
	}
	return d
}

// =============================================================================
// CLINICAL
// =============================================================================

type clinicalStrategy struct{ scanner }

func (s clinicalStrategy) Build(ctx context.Context, job Job) ([]Output, error) {
	entity, ok := scan.ClinicalEntity(job.Subtype.Name)
	if !ok {
		return nil, fmt.Errorf("unknown clinical entity %q", job.Subtype.Name)
	}
	res, err := builder.ClinicalBuilder{Entity: entity, Sanitize: job.Sanitize, Env: job.Env}.Build(ctx)
	if err != nil {
		return nil, err
	}
	return single(job, s, res), nil
}

func (clinicalStrategy) Describe(job Job, name string) meta.Document {
	return meta.Document{
		"name": name,
		"annotations": meta.Document{
			"fileType":     "clinicalMatrix",
			"lastModified": job.Version,
			"dataSubType":  job.Subtype.Name,
			"rowKeySrc":    keySource(job.Acronym),
		},
	}
}

// =============================================================================
// PASSTHROUGH
// =============================================================================

type passthroughStrategy struct{ scanner }

// Build publishes every registered file. A single file takes the subtype
// naming; several files are told apart by their source names.
func (s passthroughStrategy) Build(ctx context.Context, job Job) ([]Output, error) {
	sorted, err := table.SortChannel(ctx, job.Env.Sorter, job.Env.Dir, builder.FilesChannel(job.Subtype.Name))
	if err != nil {
		return nil, err
	}
	recs, err := table.ReadAll(sorted)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sorted, err)
	}
	var outputs []Output
	for _, rec := range recs {
		var v struct {
			File string `json:"file"`
		}
		if err := rec.Decode(&v); err != nil || v.File == "" {
			if job.Env.Errors != nil {
				job.Env.Errors.Add("Field error: %s", string(rec.Value))
			}
			continue
		}
		name := job.Subtype.FileName(job.Basename)
		if len(recs) > 1 {
			name = job.Basename + "." + filepath.Base(v.File)
		}
		outputs = append(outputs, Output{Name: name, Path: v.File, Meta: s.Describe(job, name)})
	}
	return outputs, nil
}

func (passthroughStrategy) Describe(job Job, name string) meta.Document {
	subtype := job.Subtype.Name
	if strings.EqualFold(subtype, "maf") {
		subtype = "mutation"
	}
	return meta.Document{
		"name": name,
		"annotations": meta.Document{
			"dataSubType":  subtype,
			"fileType":     job.Subtype.Extension,
			"lastModified": job.Version,
		},
	}
}
