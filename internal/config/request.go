package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AddedDateLayout is the layout of archive added dates.
const AddedDateLayout = "01-02-2006"

// Archive is one mirrored archive of a build request.
type Archive struct {
	// Path is absolute or relative to the mirror root.
	Path      string `yaml:"path" json:"path"`
	AddedDate string `yaml:"addedDate,omitempty" json:"addedDate,omitempty"`
}

// BuildRequest describes one archive build.
type BuildRequest struct {
	Basename string         `yaml:"basename" json:"basename"`
	Platform string         `yaml:"platform" json:"platform"`
	Version  string         `yaml:"version,omitempty" json:"version,omitempty"`
	Meta     map[string]any `yaml:"meta,omitempty" json:"meta,omitempty"`
	Archives []Archive      `yaml:"archives" json:"archives"`
}

// Acronym returns meta.annotations.acronym, or "".
func (r *BuildRequest) Acronym() string {
	ann, _ := r.Meta["annotations"].(map[string]any)
	s, _ := ann["acronym"].(string)
	return s
}

// Validate checks the required fields.
func (r *BuildRequest) Validate() error {
	var errs []error
	if r.Basename == "" {
		errs = append(errs, errors.New("basename is required"))
	}
	if r.Platform == "" {
		errs = append(errs, errors.New("platform is required"))
	}
	if len(r.Archives) == 0 {
		errs = append(errs, errors.New("at least one archive is required"))
	}
	for i, a := range r.Archives {
		if a.Path == "" {
			errs = append(errs, fmt.Errorf("archive %d has no path", i))
		}
	}
	return errors.Join(errs...)
}

// LoadRequest reads a YAML or JSON build request.
func LoadRequest(path string) (*BuildRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read build request: %w", err)
	}
	var req BuildRequest
	if err := yaml.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("parse build request %s: %w", path, err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build request %s: %w", path, err)
	}
	return &req, nil
}
