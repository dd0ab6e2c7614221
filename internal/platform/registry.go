// Package platform holds the registry of supported TCGA platforms and the
// build strategies that turn one platform subtype into artifacts.
package platform

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nucleus/tcga-import/internal/scan"
	"github.com/nucleus/tcga-import/pkg/ident"
	"github.com/nucleus/tcga-import/pkg/table"
)

// ErrUnknownPlatform is returned by Lookup for names missing from the registry.
var ErrUnknownPlatform = errors.New("unknown platform")

// Kind selects the build strategy of a platform.
type Kind string

const (
	KindMatrix      Kind = "matrix"
	KindSegment     Kind = "segment"
	KindClinical    Kind = "clinical"
	KindPassthrough Kind = "passthrough"
)

// Censor selects the identifier policy applied after translation.
type Censor string

const (
	CensorNone     Censor = ""
	CensorGermline Censor = "germline"
)

// Subtype is one output of a platform, built by its own scan pass.
type Subtype struct {
	Name string `yaml:"name"`
	// FileInclude and FileExclude are matched from the start of base names.
	FileInclude string   `yaml:"fileInclude,omitempty"`
	FileExclude string   `yaml:"fileExclude,omitempty"`
	ProbeFields []string `yaml:"probeFields,omitempty"`
	// ValueFields overrides the measurement fields of segment subtypes.
	ValueFields []string `yaml:"valueFields,omitempty"`
	ProbeMap    string   `yaml:"probeMap,omitempty"`
	SampleMap   string   `yaml:"sampleMap,omitempty"`
	Extension   string   `yaml:"extension,omitempty"`
	// Naming is the artifact file name pattern; {base} and {subtype} are
	// replaced by the archive base name and the subtype name.
	Naming string `yaml:"naming,omitempty"`

	include *regexp.Regexp
	exclude *regexp.Regexp
}

// FileName returns the artifact name for basename.
func (s *Subtype) FileName(basename string) string {
	return strings.NewReplacer("{base}", basename, "{subtype}", s.Name).Replace(s.Naming)
}

// Pass returns the scan pass of the subtype using ex.
func (s *Subtype) Pass(ex scan.Extractor) scan.Pass {
	return scan.Pass{
		Subtype:     s.Name,
		ProbeFields: s.ProbeFields,
		Include:     s.include,
		Exclude:     s.exclude,
		Extractor:   ex,
	}
}

// Platform is a registry entry.
type Platform struct {
	Name    string `yaml:"name"`
	Kind    Kind   `yaml:"kind"`
	Scanner string `yaml:"scanner,omitempty"`
	Censor  Censor `yaml:"censor,omitempty"`
	// TargetCleanup is removed from every sample identifier in the target map.
	TargetCleanup string `yaml:"targetCleanup,omitempty"`
	Assembly      string `yaml:"assembly,omitempty"`
	// PreserveStart keeps segment start coordinates as written.
	PreserveStart bool      `yaml:"preserveStart,omitempty"`
	Subtypes      []Subtype `yaml:"subtypes"`

	cleanup *regexp.Regexp
}

// Subtype returns the named subtype.
func (p *Platform) Subtype(name string) (*Subtype, bool) {
	for i := range p.Subtypes {
		if p.Subtypes[i].Name == name {
			return &p.Subtypes[i], true
		}
	}
	return nil, false
}

// SubtypeNames lists subtypes in build order.
func (p *Platform) SubtypeNames() []string {
	out := make([]string, len(p.Subtypes))
	for i, s := range p.Subtypes {
		out[i] = s.Name
	}
	return out
}

// Translator wraps base with the platform censorship policy.
func (p *Platform) Translator(base ident.Translator) ident.Translator {
	if base == nil {
		base = ident.Passthrough{}
	}
	if p.Censor == CensorGermline {
		return ident.Germline{Next: base}
	}
	return base
}

// Cleanup returns the compiled target cleanup pattern, or nil.
func (p *Platform) Cleanup() *regexp.Regexp { return p.cleanup }

var defaultScanner = map[Kind]string{
	KindMatrix:      "genetic",
	KindSegment:     "segment",
	KindClinical:    "clinical-xml",
	KindPassthrough: "passthrough",
}

var defaultNaming = map[Kind]string{
	KindMatrix:      "{base}.{subtype}.tsv",
	KindSegment:     "{base}.{subtype}.bed",
	KindClinical:    "{base}.{subtype}.tsv",
	KindPassthrough: "{base}.{subtype}",
}

// prepare fills defaults, validates and compiles the entry.
func (p *Platform) prepare() error {
	if p.Name == "" {
		return errors.New("platform without a name")
	}
	if _, ok := defaultScanner[p.Kind]; !ok {
		return fmt.Errorf("platform %s: unknown kind %q", p.Name, p.Kind)
	}
	if p.Scanner == "" {
		p.Scanner = defaultScanner[p.Kind]
	}
	if _, ok := Extractor(p.Scanner); !ok {
		return fmt.Errorf("platform %s: unknown scanner %q", p.Name, p.Scanner)
	}
	switch p.Censor {
	case CensorNone, CensorGermline:
	default:
		return fmt.Errorf("platform %s: unknown censor policy %q", p.Name, p.Censor)
	}
	if p.TargetCleanup != "" {
		re, err := regexp.Compile(p.TargetCleanup)
		if err != nil {
			return fmt.Errorf("platform %s: target cleanup: %w", p.Name, err)
		}
		p.cleanup = re
	}
	if len(p.Subtypes) == 0 {
		return fmt.Errorf("platform %s: no subtypes", p.Name)
	}
	seen := map[string]bool{}
	for i := range p.Subtypes {
		s := &p.Subtypes[i]
		if s.Name == "" {
			return fmt.Errorf("platform %s: subtype without a name", p.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("platform %s: duplicate subtype %s", p.Name, s.Name)
		}
		seen[s.Name] = true
		if err := table.ValidateChannel(s.Name); err != nil {
			return fmt.Errorf("platform %s: subtype %s: %w", p.Name, s.Name, err)
		}
		if s.Naming == "" {
			s.Naming = defaultNaming[p.Kind]
		}
		var err error
		if s.include, err = scan.Anchor(s.FileInclude); err != nil {
			return fmt.Errorf("platform %s: subtype %s: %w", p.Name, s.Name, err)
		}
		if s.exclude, err = scan.Anchor(s.FileExclude); err != nil {
			return fmt.Errorf("platform %s: subtype %s: %w", p.Name, s.Name, err)
		}
		if p.Kind == KindMatrix && len(s.ProbeFields) == 0 {
			return fmt.Errorf("platform %s: subtype %s has no probe fields", p.Name, s.Name)
		}
		if p.Kind == KindClinical {
			if _, ok := scan.ClinicalEntity(s.Name); !ok {
				return fmt.Errorf("platform %s: unknown clinical entity %s", p.Name, s.Name)
			}
		}
	}
	return nil
}

// Registry is a read-only set of platforms.
type Registry struct {
	platforms map[string]*Platform
}

// NewRegistry validates platforms and indexes them by name. Later entries
// replace earlier ones with the same name.
func NewRegistry(platforms ...Platform) (*Registry, error) {
	r := &Registry{platforms: make(map[string]*Platform, len(platforms))}
	for i := range platforms {
		p := platforms[i]
		p.Subtypes = append([]Subtype(nil), p.Subtypes...)
		if err := p.prepare(); err != nil {
			return nil, err
		}
		r.platforms[p.Name] = &p
	}
	return r, nil
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := NewRegistry(builtin...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the named platform.
func (r *Registry) Lookup(name string) (*Platform, error) {
	p, ok := r.platforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
	}
	return p, nil
}

// Names lists platform names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// overlayFile is the YAML layout of a registry overlay.
type overlayFile struct {
	Platforms []Platform `yaml:"platforms"`
}

// WithOverlay returns a registry holding r's platforms plus those defined in
// the YAML file at path, which replace entries of the same name.
func (r *Registry) WithOverlay(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform overlay: %w", err)
	}
	var doc overlayFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse platform overlay %s: %w", path, err)
	}
	all := make([]Platform, 0, len(r.platforms)+len(doc.Platforms))
	for _, name := range r.Names() {
		all = append(all, *r.platforms[name])
	}
	all = append(all, doc.Platforms...)
	return NewRegistry(all...)
}
