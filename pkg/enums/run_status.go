package enums

import "fmt"

// RunStatus is the outcome recorded for every reconciliation attempt.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

var validRunStatuses = []RunStatus{
	RunStatusSucceeded,
	RunStatusFailed,
	RunStatusSkipped,
}

func (s RunStatus) String() string {
	return string(s)
}

func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
