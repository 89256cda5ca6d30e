package harvest

import "fmt"

// Result tracks counts and errors from a harvest run.
type Result struct {
	Written   int
	Missing   int
	Failed    int
	Skipped   int
	Reauths   int
	Refreshes int
	Errors    []string
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"written=%d missing=%d failed=%d skipped=%d reauths=%d refreshes=%d errors=%d",
		r.Written, r.Missing, r.Failed, r.Skipped,
		r.Reauths, r.Refreshes, len(r.Errors),
	)
}
