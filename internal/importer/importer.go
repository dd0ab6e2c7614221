// Package importer runs archive builds: it resolves a build request against
// the platform registry, unpacks the archives into a private work directory,
// runs the scan passes and publishes every artifact the strategies build.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/internal/archive"
	"github.com/nucleus/tcga-import/internal/artifact"
	"github.com/nucleus/tcga-import/internal/config"
	"github.com/nucleus/tcga-import/internal/platform"
	"github.com/nucleus/tcga-import/internal/scan"
	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/ident"
	"github.com/nucleus/tcga-import/pkg/meta"
	"github.com/nucleus/tcga-import/pkg/table"
)

var (
	// ErrMissingArchive is returned when a requested archive is not in the mirror.
	ErrMissingArchive = errors.New("missing archive")
	// ErrNoMirror is returned for relative archive paths without a mirror root.
	ErrNoMirror = errors.New("mirror location is not defined")
)

const (
	archivesDir = "archives"
	channelsDir = "channels"
)

// Options tune a build.
type Options struct {
	// WorkDir is the parent of the per-run work directories.
	WorkDir string
	Mirror  string
	// UUIDTable is an optional raw-to-barcode translation table.
	UUIDTable string
	Sanitize  bool
	// DownloadOnly verifies the archives are present and stops.
	DownloadOnly   bool
	Checksum       bool
	ChecksumDelete bool
	KeepWorkDir    bool
}

// Importer runs builds. It holds no per-run state and may be shared.
type Importer struct {
	registry *platform.Registry
	sorter   table.Sorter
	sink     artifact.Sink
	opts     Options
	logger   logrus.FieldLogger
	now      func() time.Time
}

// New creates an Importer.
func New(registry *platform.Registry, sorter table.Sorter, sink artifact.Sink, opts Options, logger logrus.FieldLogger) *Importer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Importer{
		registry: registry,
		sorter:   sorter,
		sink:     sink,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Report summarizes a build.
type Report struct {
	Basename string
	Platform string
	Version  string
	// WorkDir is empty once the work directory was removed.
	WorkDir    string
	Checks     []archive.Check
	Artifacts  []*artifact.Published
	SoftErrors int
}

// Run executes req. The work directory is kept on failure, in download-only
// mode, and when KeepWorkDir is set.
func (im *Importer) Run(ctx context.Context, req *config.BuildRequest) (*Report, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build request: %w", err)
	}
	p, err := im.registry.Lookup(req.Platform)
	if err != nil {
		return nil, err
	}
	strategy, err := platform.StrategyFor(p)
	if err != nil {
		return nil, err
	}
	log := im.logger.WithFields(logrus.Fields{"basename": req.Basename, "platform": p.Name})

	paths, err := im.ArchivePaths(req)
	if err != nil {
		return nil, err
	}
	report := &Report{Basename: req.Basename, Platform: p.Name}
	if im.opts.Checksum || im.opts.ChecksumDelete {
		if report.Checks, err = im.verify(paths, log); err != nil {
			return report, err
		}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return report, fmt.Errorf("%w: %s", ErrMissingArchive, path)
		}
	}

	base := ident.Passthrough{}
	if im.opts.UUIDTable != "" {
		tbl, err := ident.LoadTable(im.opts.UUIDTable)
		if err != nil {
			return report, fmt.Errorf("load uuid table: %w", err)
		}
		base.Table = tbl
	}

	if report.Version, err = Version(req, im.now()); err != nil {
		return report, err
	}

	work := filepath.Join(im.opts.WorkDir, "tcga-"+uuid.NewString())
	for _, dir := range []string{archivesDir, channelsDir} {
		if err := os.MkdirAll(filepath.Join(work, dir), 0o755); err != nil {
			return report, fmt.Errorf("create work dir: %w", err)
		}
	}
	report.WorkDir = work
	log = log.WithField("workdir", work)

	if im.opts.DownloadOnly {
		log.Info("download only, archives present")
		return report, nil
	}

	for _, path := range paths {
		if _, err := archive.Extract(ctx, path, filepath.Join(work, archivesDir), log); err != nil {
			return report, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
		}
	}

	if err := im.build(ctx, req, p, strategy, base, work, report, log); err != nil {
		return report, err
	}

	if !im.opts.KeepWorkDir {
		if err := os.RemoveAll(work); err != nil {
			return report, fmt.Errorf("remove work dir: %w", err)
		}
		report.WorkDir = ""
	}
	log.WithFields(logrus.Fields{
		"artifacts":   len(report.Artifacts),
		"soft_errors": report.SoftErrors,
	}).Info("build complete")
	return report, nil
}

func (im *Importer) build(ctx context.Context, req *config.BuildRequest, p *platform.Platform, strategy platform.Strategy,
	base ident.Translator, work string, report *Report, log logrus.FieldLogger) error {
	sc := scan.NewScanner(filepath.Join(work, archivesDir), log)
	channels := filepath.Join(work, channelsDir)

	em, err := table.NewEmitter(channels)
	if err != nil {
		return err
	}
	mageErrs := builder.NewErrorLog()
	ext, err := sc.Mage(ctx, em, mageErrs)
	if cerr := em.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n := mageErrs.Len(); n > 0 {
		report.SoftErrors += n
		log.WithField("soft_errors", n).Warn("mage scan recorded errors")
	}

	for i := range p.Subtypes {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := &p.Subtypes[i]
		job := platform.Job{
			Platform: p,
			Subtype:  st,
			Basename: req.Basename,
			Version:  report.Version,
			Acronym:  req.Acronym(),
			Sanitize: im.opts.Sanitize,
			Env: builder.Env{
				Dir:           channels,
				Sorter:        im.sorter,
				Translator:    p.Translator(base),
				TargetCleanup: p.Cleanup(),
				Errors:        builder.NewErrorLog(),
				Logger:        log.WithField("subtype", st.Name),
			},
		}
		if err := im.pass(ctx, sc, strategy, job, ext, req.Meta, report); err != nil {
			return fmt.Errorf("subtype %s: %w", st.Name, err)
		}
	}
	return nil
}

// pass scans, builds and publishes one subtype.
func (im *Importer) pass(ctx context.Context, sc *scan.Scanner, strategy platform.Strategy, job platform.Job,
	ext, reqMeta meta.Document, report *Report) error {
	em, err := table.NewEmitter(job.Env.Dir)
	if err != nil {
		return err
	}
	_, err = strategy.Scan(ctx, sc, job, em)
	if cerr := em.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	outs, err := strategy.Build(ctx, job)
	if err != nil {
		return err
	}
	report.SoftErrors += job.Env.Errors.Len()
	if len(outs) == 0 {
		job.Env.Logger.WithField("soft_errors", job.Env.Errors.Len()).Info("no artifact produced")
		return nil
	}
	for _, out := range outs {
		pub, err := im.sink.Publish(ctx, artifact.Artifact{
			Name:     out.Name,
			Platform: job.Platform.Name,
			Basename: job.Basename,
			Subtype:  job.Subtype.Name,
			Version:  job.Version,
			Path:     out.Path,
			Meta:     meta.Merge(meta.Merge(out.Meta, ext), reqMeta),
			Errors:   job.Env.Errors,
			Rows:     out.Rows,
			Cols:     out.Cols,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", out.Name, err)
		}
		report.Artifacts = append(report.Artifacts, pub)
	}
	return nil
}

// ArchivePaths resolves the archive paths of req against the mirror.
func (im *Importer) ArchivePaths(req *config.BuildRequest) ([]string, error) {
	out := make([]string, 0, len(req.Archives))
	for _, a := range req.Archives {
		if filepath.IsAbs(a.Path) {
			out = append(out, a.Path)
			continue
		}
		if im.opts.Mirror == "" {
			return nil, fmt.Errorf("%w: archive %s", ErrNoMirror, a.Path)
		}
		out = append(out, filepath.Join(im.opts.Mirror, filepath.FromSlash(a.Path)))
	}
	return out, nil
}

func (im *Importer) verify(paths []string, log logrus.FieldLogger) ([]archive.Check, error) {
	var checks []archive.Check
	for _, path := range paths {
		c, err := archive.Verify(path, im.opts.ChecksumDelete)
		if err != nil {
			return checks, fmt.Errorf("checksum %s: %w", path, err)
		}
		entry := log.WithFields(logrus.Fields{"archive": path, "status": c.Status})
		if c.Status == archive.StatusOK {
			entry.Debug("checksum verified")
		} else {
			entry.WithField("deleted", c.Deleted).Warn("checksum problem")
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// Version returns the request version, else the newest archive added date as
// 2006-01-02, else the date of now.
func Version(req *config.BuildRequest, now time.Time) (string, error) {
	if req.Version != "" {
		return req.Version, nil
	}
	var dates []time.Time
	for _, a := range req.Archives {
		if a.AddedDate == "" {
			continue
		}
		d, err := time.Parse(config.AddedDateLayout, a.AddedDate)
		if err != nil {
			return "", fmt.Errorf("archive %s: added date: %w", a.Path, err)
		}
		dates = append(dates, d)
	}
	if len(dates) == 0 {
		return now.Format(time.DateOnly), nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates[0].Format(time.DateOnly), nil
}
