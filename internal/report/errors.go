package report

import "fmt"

// IoError reports a file the tool could not read or write. The file is
// skipped and counted as an analysis error; the traversal continues.
type IoError struct {
	Path  string
	Op    string
	Cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *IoError) Unwrap() error { return e.Cause }
