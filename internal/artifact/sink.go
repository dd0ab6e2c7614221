// Package artifact publishes built files together with their metadata
// sidecars, soft error logs and catalog entries.
package artifact

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/nucleus/tcga-import/pkg/builder"
	"github.com/nucleus/tcga-import/pkg/meta"
)

// Artifact is one built file ready for publication.
type Artifact struct {
	// Name is the published file name.
	Name     string
	Platform string
	Basename string
	Subtype  string
	Version  string
	// Path is the built file inside the work directory.
	Path string
	// Meta is the merged metadata; the sink adds md5.
	Meta   meta.Document
	Errors *builder.ErrorLog
	Rows   int
	Cols   int
}

// Published describes where an artifact ended up.
type Published struct {
	Name     string
	Path     string
	Sidecar  string
	ErrorLog string
	MD5      string
	Size     int64
	// Objects lists object store URLs when the artifact was uploaded.
	Objects []string
	Meta    meta.Document
}

// Sink accepts built artifacts.
type Sink interface {
	Publish(ctx context.Context, a Artifact) (*Published, error)
}

// LocalSink writes artifacts into an output directory.
type LocalSink struct {
	Dir    string
	Logger logrus.FieldLogger
}

// NewLocalSink creates a sink writing into dir.
func NewLocalSink(dir string, logger logrus.FieldLogger) *LocalSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LocalSink{Dir: dir, Logger: logger}
}

// ErrorLogName returns the file name of the soft error log of a subtype pass.
func ErrorLogName(basename, subtype string) string {
	return fmt.Sprintf("%s.%s.error", basename, subtype)
}

// Publish copies the artifact to <dir>/<name> while hashing it, writes the
// <name>.json sidecar and, when soft errors were recorded, the error log.
func (s *LocalSink) Publish(ctx context.Context, a Artifact) (*Published, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Name == "" || a.Path == "" {
		return nil, wrapError(CodeSinkWriteFailed, false, errors.New("artifact name and path are required"))
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, wrapError(CodePermissionDenied, false, err)
	}

	dst := filepath.Join(s.Dir, a.Name)
	sum, size, err := copyDigest(a.Path, dst)
	if err != nil {
		return nil, err
	}

	doc := meta.Clone(a.Meta)
	if doc == nil {
		doc = meta.Document{}
	}
	doc["md5"] = sum
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, wrapError(CodeSinkWriteFailed, false, fmt.Errorf("encode metadata: %w", err))
	}
	sidecar := dst + ".json"
	if err := os.WriteFile(sidecar, append(b, '\n'), 0o644); err != nil {
		return nil, wrapError(CodeSinkWriteFailed, true, err)
	}

	pub := &Published{Name: a.Name, Path: dst, Sidecar: sidecar, MD5: sum, Size: size, Meta: doc}
	if a.Errors != nil && a.Errors.Len() > 0 {
		pub.ErrorLog = filepath.Join(s.Dir, ErrorLogName(a.Basename, a.Subtype))
		if err := writeErrorLog(pub.ErrorLog, a.Errors); err != nil {
			return nil, err
		}
	}

	s.Logger.WithFields(logrus.Fields{
		"artifact":    a.Name,
		"subtype":     a.Subtype,
		"bytes":       humanize.Bytes(uint64(size)),
		"soft_errors": a.Errors.Len(),
	}).Info("artifact published")
	return pub, nil
}

// copyDigest copies src to dst and returns the md5 of the bytes written. When
// src and dst are the same file it is only hashed.
func copyDigest(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, wrapError(CodeObjectNotFound, false, err)
	}
	defer in.Close()

	h := md5.New()
	var w io.Writer = h
	var out *os.File
	if same, _ := sameFile(src, dst); !same {
		out, err = os.Create(dst)
		if err != nil {
			return "", 0, wrapError(CodeSinkWriteFailed, true, err)
		}
		w = io.MultiWriter(out, h)
	}
	n, err := io.Copy(w, in)
	if out != nil {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return "", 0, wrapError(CodeSinkWriteFailed, true, fmt.Errorf("copy %s: %w", src, err))
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func sameFile(a, b string) (bool, error) {
	ia, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(ia, ib), nil
}

func writeErrorLog(path string, log *builder.ErrorLog) error {
	f, err := os.Create(path)
	if err != nil {
		return wrapError(CodeSinkWriteFailed, true, err)
	}
	if _, err := log.WriteTo(f); err != nil {
		f.Close()
		return wrapError(CodeSinkWriteFailed, true, err)
	}
	if err := f.Close(); err != nil {
		return wrapError(CodeSinkWriteFailed, true, err)
	}
	return nil
}
