// Package archive unpacks mirrored TCGA archives and checks them against
// their md5 companions.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/pgzip"
	"github.com/sirupsen/logrus"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Stats summarizes one extraction.
type Stats struct {
	Files int
	Bytes int64
}

// Extract unpacks the tar archive at path into dst. Gzip compression is
// detected from the stream header.
func Extract(ctx context.Context, path, dst string, logger logrus.FieldLogger) (Stats, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := pgzip.NewReader(br)
		if err != nil {
			return Stats{}, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return Stats{}, err
	}
	root, err := filepath.Abs(dst)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("read %s: %w", path, err)
		}
		target, err := entryPath(root, hdr.Name)
		if err != nil {
			return st, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return st, err
			}
		case tar.TypeReg:
			n, err := writeEntry(target, tr, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return st, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			st.Files++
			st.Bytes += n
		default:
			logger.WithField("entry", hdr.Name).Debug("skipping non regular archive entry")
		}
	}

	logger.WithFields(logrus.Fields{
		"archive": filepath.Base(path),
		"files":   st.Files,
		"bytes":   humanize.Bytes(uint64(st.Bytes)),
	}).Info("archive extracted")
	return st, nil
}

func entryPath(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, perm os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o200)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
