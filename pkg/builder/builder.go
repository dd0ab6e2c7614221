// Package builder turns sorted channel files into publishable tables: genomic
// matrices, BED5 segment tracks and clinical tables.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/pkg/ident"
	"github.com/nucleus/tcga-import/pkg/table"
)

// Env is the per-pass context shared by all builders.
type Env struct {
	// Dir is the work directory holding channel files.
	Dir string
	// Sorter orders channel files before they are merged.
	Sorter table.Sorter
	// Translator maps raw sample identifiers to output identifiers.
	Translator ident.Translator
	// TargetCleanup, when set, is stripped from every target map value.
	TargetCleanup *regexp.Regexp
	// Errors receives soft per-record failures. A nil Errors discards them;
	// callers that report soft errors must supply a log.
	Errors *ErrorLog
	Logger logrus.FieldLogger
}

func (e Env) logger() logrus.FieldLogger {
	if e.Logger == nil {
		return logrus.StandardLogger()
	}
	return e.Logger
}

func (e Env) translator() ident.Translator {
	if e.Translator == nil {
		return ident.Passthrough{}
	}
	return e.Translator
}

// errors returns the pass log, or a throwaway log when none was supplied.
func (e Env) errors() *ErrorLog {
	if e.Errors == nil {
		return NewErrorLog()
	}
	return e.Errors
}

// targets sorts the targets channel and loads it as a TargetMap.
func (e Env) targets(ctx context.Context) (*ident.TargetMap, error) {
	path, err := table.SortChannel(ctx, e.Sorter, e.Dir, TargetsChannel)
	if err != nil {
		return nil, err
	}
	return ident.LoadTargetMap(path, e.TargetCleanup)
}

// Result describes the file a builder produced.
type Result struct {
	// Path is empty when nothing was produced.
	Path string
	Rows int
	Cols int
}

// Empty reports whether the build produced no artifact.
func (r *Result) Empty() bool { return r == nil || r.Path == "" }

// Channel names shared with the scanners.
const (
	TargetsChannel = "targets"
	probesSuffix   = ".probes"
	segmentsSuffix = ".segments"
	filesSuffix    = ".files"
)

// ProbesChannel is the channel holding probe records of subtype.
func ProbesChannel(subtype string) string { return subtype + probesSuffix }

// SegmentsChannel is the channel holding segment records of subtype.
func SegmentsChannel(subtype string) string { return subtype + segmentsSuffix }

// FilesChannel is the channel listing pass-through files of subtype.
func FilesChannel(subtype string) string { return subtype + filesSuffix }

// cellString renders a decoded JSON value as a table cell.
func cellString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// firstField returns the first of names present in value.
func firstField(value map[string]any, names ...string) (any, bool) {
	for _, name := range names {
		if v, ok := value[name]; ok {
			return v, true
		}
	}
	return nil, false
}
