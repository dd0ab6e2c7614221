// Package scan walks an extracted archive tree and feeds its files to
// extractors that emit channel records for the builders.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/meta"
)

// Emitter receives records produced by extractors. *table.Emitter satisfies it.
type Emitter interface {
	Emit(key string, value any, channel string) error
}

// File is one input file handed to an Extractor during a subtype pass.
type File struct {
	Path        string
	Subtype     string
	ProbeFields []string
	Out         Emitter
	Errors      *builder.ErrorLog
}

// Name returns the base name of the file.
func (f File) Name() string { return filepath.Base(f.Path) }

// Extractor turns a data file into channel records.
type Extractor interface {
	Extract(ctx context.Context, f File) error
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, f File) error

func (fn ExtractorFunc) Extract(ctx context.Context, f File) error { return fn(ctx, f) }

// Pass selects and extracts the files of one data subtype.
type Pass struct {
	Subtype     string
	ProbeFields []string
	// Include and Exclude are matched against base names; nil means no filter.
	Include   *regexp.Regexp
	Exclude   *regexp.Regexp
	Extractor Extractor
}

// excludes are searched anywhere in a base name.
var excludes = []*regexp.Regexp{
	regexp.MustCompile(`MANIFEST.txt$`),
	regexp.MustCompile(`CHANGES_DCC.txt$`),
	regexp.MustCompile(`README_DCC.txt$`),
	regexp.MustCompile(`README.txt$`),
	regexp.MustCompile(`CHANGES.txt$`),
	regexp.MustCompile(`DCC_ALTERED_FILES.txt$`),
	regexp.MustCompile(`.wig$`),
	regexp.MustCompile(`DESCRIPTIO$`),
}

// Excluded reports whether a base name is archive bookkeeping rather than data.
func Excluded(name string) bool {
	for _, re := range excludes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// IsMage reports whether path is a MAGE-TAB description file.
func IsMage(path string) bool {
	return strings.HasSuffix(path, ".sdrf.txt") ||
		strings.HasSuffix(path, ".idf.txt") ||
		strings.HasSuffix(path, "DESCRIPTION.txt")
}

// Anchor compiles pattern so that it only matches at the start of a name.
func Anchor(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile file filter %q: %w", pattern, err)
	}
	return re, nil
}

// Scanner walks the files below Root in lexical order.
type Scanner struct {
	Root   string
	Logger logrus.FieldLogger
}

// NewScanner returns a Scanner rooted at dir.
func NewScanner(dir string, logger logrus.FieldLogger) *Scanner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{Root: dir, Logger: logger}
}

func (s *Scanner) walk(ctx context.Context, fn func(path string) error) error {
	return filepath.WalkDir(s.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != s.Root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return fn(path)
	})
}

// Mage scans the MAGE-TAB files of the tree. Targets go to out; descriptive
// metadata from IDF and DESCRIPTION files is returned.
func (s *Scanner) Mage(ctx context.Context, out Emitter, errs *builder.ErrorLog) (meta.Document, error) {
	ext := meta.Document{}
	n := 0
	err := s.walk(ctx, func(path string) error {
		if !IsMage(path) {
			return nil
		}
		n++
		switch {
		case strings.HasSuffix(path, ".sdrf.txt"):
			return scanSDRF(path, out, errs)
		case strings.HasSuffix(path, ".idf.txt"):
			return scanIDF(path, ext)
		default:
			return scanDescription(path, ext)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("mage scan %s: %w", s.Root, err)
	}
	s.Logger.WithField("files", n).Debug("mage scan complete")
	return ext, nil
}

// Scan runs one subtype pass and returns the number of files extracted.
func (s *Scanner) Scan(ctx context.Context, p Pass, out Emitter, errs *builder.ErrorLog) (int, error) {
	if p.Extractor == nil {
		return 0, errors.New("scan pass has no extractor")
	}
	log := s.Logger.WithField("subtype", p.Subtype)
	n := 0
	err := s.walk(ctx, func(path string) error {
		name := filepath.Base(path)
		if IsMage(path) || Excluded(name) {
			return nil
		}
		if p.Include != nil && !p.Include.MatchString(name) {
			return nil
		}
		if p.Exclude != nil && p.Exclude.MatchString(name) {
			return nil
		}
		log.WithField("file", name).Debug("extracting")
		n++
		f := File{Path: path, Subtype: p.Subtype, ProbeFields: p.ProbeFields, Out: out, Errors: errs}
		if err := p.Extractor.Extract(ctx, f); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("scan %s: %w", p.Subtype, err)
	}
	log.WithField("files", n).Info("scan complete")
	return n, nil
}

// eachLine calls fn for every line of path with trailing whitespace removed.
// Line numbers start at 1.
func eachLine(path string, fn func(n int, line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 256*1024)
	n := 0
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			n++
			if ferr := fn(n, strings.TrimRight(line, " \t\r\n")); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
