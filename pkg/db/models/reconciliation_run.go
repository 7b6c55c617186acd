package models

import (
	"time"

	"github.com/vitroscience/vitro-bi/pkg/enums"
)

// ReconciliationRun is the audit row written for every attempted run.
type ReconciliationRun struct {
	ID              string `gorm:"primaryKey"`
	StartedAt       time.Time
	FinishedAt      *time.Time
	SnapshotDate    string
	Status          enums.RunStatus
	Fetched         int
	SkippedRecords  int
	Pending         int
	NewCount        int
	PaidCount       int
	AnomalyCount    int
	FeedFingerprint string
	Error           *string
}

func (ReconciliationRun) TableName() string { return "receivable_runs" }

// ReceivableAnomaly records an invoice the run refused to treat normally.
type ReceivableAnomaly struct {
	ID               uint64 `gorm:"primaryKey;autoIncrement"`
	RunID            string
	Kind             enums.AnomalyKind
	Action           enums.AnomalyAction
	DebtorID         string
	DocumentFolio    string
	Balance          int64
	PreviousPaidDate *time.Time
	DetectedAt       time.Time
}

func (ReceivableAnomaly) TableName() string { return "receivable_anomalies" }
