package persist

import "fmt"

// IOError reports a filesystem failure during a save or load.
type IOError struct {
	// Op is the step that failed, for example "create", "write" or "rename".
	Op string

	// Path is the destination file.
	Path string

	// Err is the underlying error.
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("persist: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
