package builder

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
)

// ErrorLog collects per-record problems that are tolerated during a build.
// One log covers a single data subtype pass.
type ErrorLog struct {
	errs *multierror.Error
}

// NewErrorLog returns an empty log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{}
}

// Add records a formatted message.
func (l *ErrorLog) Add(format string, args ...any) {
	l.errs = multierror.Append(l.errs, fmt.Errorf(format, args...))
}

// Len is the number of recorded messages.
func (l *ErrorLog) Len() int {
	if l == nil || l.errs == nil {
		return 0
	}
	return len(l.errs.Errors)
}

// Messages returns recorded messages in insertion order.
func (l *ErrorLog) Messages() []string {
	if l.Len() == 0 {
		return nil
	}
	out := make([]string, 0, len(l.errs.Errors))
	for _, err := range l.errs.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Err returns nil for an empty log and a combined error otherwise.
func (l *ErrorLog) Err() error {
	if l == nil {
		return nil
	}
	return l.errs.ErrorOrNil()
}

// WriteTo writes one message per line.
func (l *ErrorLog) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, msg := range l.Messages() {
		c, err := bw.WriteString(msg + "\n")
		n += int64(c)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
