package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nucleus/tcga-import/pkg/meta"
)

// Status is the outcome of a checksum verification.
type Status string

const (
	StatusOK          Status = "OK"
	StatusCorrupt     Status = "CORRUPT"
	StatusNotFound    Status = "NOT_FOUND"
	StatusMD5NotFound Status = "MD5_NOT_FOUND"
)

// Check is the verification result of one archive.
type Check struct {
	Path     string
	Status   Status
	Expected string
	Actual   string
	// Deleted is set when a corrupt archive and its md5 file were removed.
	Deleted bool
}

// Verify compares the md5 of path with the first token of <path>.md5. With
// deleteCorrupt set, a mismatching pair of files is removed.
func Verify(path string, deleteCorrupt bool) (Check, error) {
	c := Check{Path: path}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.Status = StatusNotFound
			return c, nil
		}
		return c, err
	}
	expected, err := readMD5(path + ".md5")
	if errors.Is(err, os.ErrNotExist) {
		c.Status = StatusMD5NotFound
		return c, nil
	}
	if err != nil {
		return c, err
	}
	c.Expected = expected

	if c.Actual, err = meta.Digest(path); err != nil {
		return c, err
	}
	if !strings.EqualFold(c.Expected, c.Actual) {
		c.Status = StatusCorrupt
		if deleteCorrupt {
			if err := errors.Join(os.Remove(path), os.Remove(path+".md5")); err != nil {
				return c, fmt.Errorf("delete corrupt archive: %w", err)
			}
			c.Deleted = true
		}
		return c, nil
	}
	c.Status = StatusOK
	return c, nil
}

func readMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", nil
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}
