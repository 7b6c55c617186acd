package models

// CronLock is the row a scheduler holds while it runs a cycle. Expiry is
// stored as unix milliseconds so both dialects compare it the same way.
type CronLock struct {
	Name        string `gorm:"primaryKey"`
	Owner       string
	ExpiresAtMS int64 `gorm:"column:expires_at_ms"`
}

func (CronLock) TableName() string { return "cron_locks" }
