// Package activities implements the Temporal activities of the TCGA import worker.
package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/nucleus/tcga-import/internal/config"
	"github.com/nucleus/tcga-import/internal/importer"
	"github.com/nucleus/tcga-import/internal/platform"
)

// Runner executes build requests. *importer.Importer implements it.
type Runner interface {
	Run(ctx context.Context, req *config.BuildRequest) (*importer.Report, error)
}

// Activities holds the TCGA Temporal activities.
type Activities struct {
	runner Runner
}

// NewActivities creates a new Activities instance.
func NewActivities(runner Runner) *Activities {
	return &Activities{runner: runner}
}

// =============================================================================
// ACTIVITY: BuildArchive
// =============================================================================

// BuildArchive runs one archive build and publishes its artifacts. Request
// errors that a retry cannot fix are returned as non-retryable.
func (a *Activities) BuildArchive(ctx context.Context, req BuildArchiveRequest) (*BuildArchiveResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("building archive", "runId", req.RunID, "basename", req.Basename, "platform", req.Platform)

	br := toBuildRequest(req)
	if err := br.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid build request", "InvalidRequest", err)
	}

	rep, err := a.runner.Run(ctx, br)
	if err != nil {
		if permanent(err) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "BuildRejected", err)
		}
		return nil, fmt.Errorf("build %s: %w", req.Basename, err)
	}

	result := &BuildArchiveResult{
		Basename:   rep.Basename,
		Platform:   rep.Platform,
		Version:    rep.Version,
		SoftErrors: rep.SoftErrors,
	}
	for _, pub := range rep.Artifacts {
		result.Artifacts = append(result.Artifacts, ArtifactRef{
			Name:     pub.Name,
			Path:     pub.Path,
			MD5:      pub.MD5,
			Size:     pub.Size,
			ErrorLog: pub.ErrorLog,
			Objects:  pub.Objects,
		})
	}
	result.Logs = append(result.Logs, LogEntry{
		Level:   "INFO",
		Message: fmt.Sprintf("published %d artifacts", len(result.Artifacts)),
		Fields:  map[string]any{"version": rep.Version},
	})
	if rep.SoftErrors > 0 {
		result.Logs = append(result.Logs, LogEntry{
			Level:   "WARN",
			Message: fmt.Sprintf("%d soft errors recorded", rep.SoftErrors),
		})
	}

	logger.Info("archive build complete", "artifacts", len(result.Artifacts), "softErrors", rep.SoftErrors)
	return result, nil
}

func toBuildRequest(req BuildArchiveRequest) *config.BuildRequest {
	br := &config.BuildRequest{
		Basename: req.Basename,
		Platform: req.Platform,
		Version:  req.Version,
		Meta:     req.Meta,
	}
	for _, a := range req.Archives {
		br.Archives = append(br.Archives, config.Archive{Path: a.Path, AddedDate: a.AddedDate})
	}
	return br
}

func permanent(err error) bool {
	return errors.Is(err, platform.ErrUnknownPlatform) ||
		errors.Is(err, importer.ErrMissingArchive) ||
		errors.Is(err, importer.ErrNoMirror)
}
