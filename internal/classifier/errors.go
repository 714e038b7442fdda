package classifier

import "fmt"

// BugDataCode classifies provider failures into the two categories the
// classifier knows how to interpret. Anything else propagates to the caller.
type BugDataCode string

const (
	// CodeNotAuthorized means the bug exists but its data is not accessible,
	// typically because the bug is confidential.
	CodeNotAuthorized BugDataCode = "not_authorized"

	// CodeFetchFailed covers every other data-retrieval failure.
	CodeFetchFailed BugDataCode = "fetch_failed"
)

// BugDataError is a structured error returned by BugDataProvider
// implementations. It carries a normalized code alongside the original
// transport details and supports errors.Is / errors.As unwrapping.
type BugDataError struct {
	Code       BugDataCode
	Message    string
	StatusCode int
	Cause      error
}

func (e *BugDataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("bug data: %s: %s (status %d): %v",
			e.Code, e.Message, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("bug data: %s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

func (e *BugDataError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is to match BugDataErrors by code.
func (e *BugDataError) Is(target error) bool {
	t, ok := target.(*BugDataError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotAuthorized = &BugDataError{Code: CodeNotAuthorized}
	ErrFetchFailed   = &BugDataError{Code: CodeFetchFailed}
)
