package batch

import "fmt"

// Status classifies a whole run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
	StatusEmpty          Status = "empty"
)

// Outcome is the result of processing one candidate.
type Outcome struct {
	Key      string
	Artifact string // output file, empty on failure
	Err      error
}

// Result is the response body of a batch run.
type Result struct {
	Status       Status   `json:"status"`
	Message      string   `json:"message"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	Errors       []string `json:"errors"`
	RunID        string   `json:"run_id,omitempty"`
	Prefix       string   `json:"prefix,omitempty"`
}

// Summarize classifies a run from its per-candidate outcomes. runErrs are
// failures that belong to no candidate, such as a broken listing; they are
// appended to the error list and keep a run from being reported as a clean
// success or as empty.
func Summarize(outcomes []Outcome, runErrs []string) Result {
	res := Result{Errors: []string{}}
	for _, o := range outcomes {
		if o.Err == nil {
			res.SuccessCount++
			continue
		}
		res.FailureCount++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", o.Key, o.Err))
	}
	res.Errors = append(res.Errors, runErrs...)

	switch {
	case len(outcomes) == 0 && len(runErrs) == 0:
		res.Status = StatusEmpty
		res.Message = "No files to transcribe"
	case len(outcomes) == 0:
		res.Status = StatusFailed
		res.Message = "No files could be scanned."
	case res.SuccessCount == 0:
		res.Status = StatusFailed
		res.Message = "All files failed to transcribe."
	case res.FailureCount > 0 || len(runErrs) > 0:
		res.Status = StatusPartialSuccess
		res.Message = fmt.Sprintf("%d files succeeded, %d failed.", res.SuccessCount, res.FailureCount)
	default:
		res.Status = StatusSuccess
		res.Message = "All files transcribed successfully."
	}
	return res
}

// UploadError is a failed upload of one run artifact.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %v", e.Key, e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }
