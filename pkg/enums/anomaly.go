package enums

import "fmt"

// AnomalyKind classifies suspicious feed content surfaced by a run.
type AnomalyKind string

const (
	// AnomalyKindReopenedPaid is a key already settled in history that shows
	// up again in the open-invoice feed.
	AnomalyKindReopenedPaid AnomalyKind = "reopened_paid"
)

// AnomalyAction records what the run did with the offending invoice.
type AnomalyAction string

const (
	AnomalyActionQuarantined AnomalyAction = "quarantined"
	AnomalyActionReadmitted  AnomalyAction = "readmitted"
)

var validAnomalyActions = []AnomalyAction{
	AnomalyActionQuarantined,
	AnomalyActionReadmitted,
}

func (a AnomalyAction) IsValid() bool {
	for _, candidate := range validAnomalyActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAnomalyAction maps the configured reopen policy onto an action.
func ParseAnomalyAction(value string) (AnomalyAction, error) {
	switch value {
	case "quarantine", string(AnomalyActionQuarantined):
		return AnomalyActionQuarantined, nil
	case "readmit", string(AnomalyActionReadmitted):
		return AnomalyActionReadmitted, nil
	}
	return "", fmt.Errorf("invalid anomaly action %q", value)
}
