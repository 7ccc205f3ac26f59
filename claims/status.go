package claims

import "fmt"

// Status is the processing state of a claim
type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusClassifying Status = "classifying"
	StatusExtracting  Status = "extracting"
	StatusEvaluating  Status = "evaluating"
	StatusCompleted   Status = "completed"
	StatusRejected    Status = "rejected"
)

// transitions lists the forward moves allowed from each status.
// completed -> completed is a re-evaluation that replaces the previous result.
var transitions = map[Status][]Status{
	StatusUploaded:    {StatusClassifying, StatusRejected},
	StatusClassifying: {StatusExtracting, StatusRejected},
	StatusExtracting:  {StatusEvaluating, StatusRejected},
	StatusEvaluating:  {StatusCompleted, StatusRejected},
	StatusCompleted:   {StatusCompleted},
}

// ParseStatus converts a label to a Status
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUploaded, StatusClassifying, StatusExtracting,
		StatusEvaluating, StatusCompleted, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown claim status %q", s)
}

// Terminal reports whether no further processing happens from s
func (s Status) Terminal() bool {
	return s == StatusRejected
}

// CanTransition reports whether moving from s to next is allowed
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
